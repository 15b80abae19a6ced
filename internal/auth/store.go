package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Companies(ctx context.Context) CompanyStore
	Tokens(ctx context.Context) TokenStore
}

// UserStore manages accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	ListByCompany(ctx context.Context, companyID string) ([]*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// CompanyStore manages companies.
type CompanyStore interface {
	Create(ctx context.Context, c *Company) error
	Find(ctx context.Context, id string) (*Company, error)
	List(ctx context.Context) ([]*Company, error)
	Delete(ctx context.Context, id string) error
}

// TokenStore manages single-use token lifecycle.
type TokenStore interface {
	Create(ctx context.Context, tok *Token) error
	Find(ctx context.Context, id string) (*Token, error)
	MarkUsed(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) error
}
