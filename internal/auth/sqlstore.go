package auth

import (
	"context"
	"database/sql"
	"time"

	"kars.dev/internal/ids"
	"kars.dev/internal/store"
)

var _ Store = (*SQLStore)(nil)

// SQLStore implements Store on PostgreSQL or SQLite.
type SQLStore struct {
	db *store.DB
}

func NewSQLStore(db *store.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Users(context.Context) UserStore        { return &userStore{db: s.db} }
func (s *SQLStore) Companies(context.Context) CompanyStore { return &companyStore{db: s.db} }
func (s *SQLStore) Tokens(context.Context) TokenStore      { return &tokenStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *store.DB }

const userColumns = `id, email, password_hash, name, role, manager_name, manager_email,
	company_id, mfa_secret, mfa_enabled, email_verified, status, created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`insert into users(`+userColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`),
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.ManagerName, u.ManagerEmail,
		u.CompanyID, u.MFASecret, u.MFAEnabled, u.EmailVerified, u.Status, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.ManagerName,
		&u.ManagerEmail, &u.CompanyID, &u.MFASecret, &u.MFAEnabled, &u.EmailVerified,
		&u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, s.db.Rebind(
		`select `+userColumns+` from users where id=$1`), id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, s.db.Rebind(
		`select `+userColumns+` from users where email=$1`), email))
}

func (s *userStore) list(ctx context.Context, query string, args ...any) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) List(ctx context.Context) ([]*User, error) {
	return s.list(ctx, `select `+userColumns+` from users order by created_at asc`)
}

func (s *userStore) ListByCompany(ctx context.Context, companyID string) ([]*User, error) {
	return s.list(ctx, `select `+userColumns+` from users where company_id=$1 order by created_at asc`, companyID)
}

func (s *userStore) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`update users set email=$1, name=$2, role=$3, manager_name=$4, manager_email=$5,
		 company_id=$6, mfa_secret=$7, mfa_enabled=$8, email_verified=$9, status=$10,
		 updated_at=$11 where id=$12`),
		u.Email, u.Name, u.Role, u.ManagerName, u.ManagerEmail,
		u.CompanyID, u.MFASecret, u.MFAEnabled, u.EmailVerified, u.Status,
		u.UpdatedAt, u.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`update users set password_hash=$1, updated_at=$2 where id=$3`),
		passwordHash, time.Now().UTC(), userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`delete from users where id=$1`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	return n, err
}

// Company store ------------------------------------------------------------
type companyStore struct{ db *store.DB }

func (s *companyStore) Create(ctx context.Context, c *Company) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`insert into companies(id, name, domain, created_at) values($1,$2,$3,$4)`),
		c.ID, c.Name, c.Domain, c.CreatedAt,
	)
	return err
}

func (s *companyStore) Find(ctx context.Context, id string) (*Company, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`select id, name, domain, created_at from companies where id=$1`), id)
	var c Company
	if err := row.Scan(&c.ID, &c.Name, &c.Domain, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *companyStore) List(ctx context.Context) ([]*Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, domain, created_at from companies order by name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Domain, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &c)
	}
	return res, rows.Err()
}

func (s *companyStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`delete from companies where id=$1`), id)
	return err
}

// Token store --------------------------------------------------------------
type tokenStore struct{ db *store.DB }

func (s *tokenStore) Create(ctx context.Context, tok *Token) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`insert into auth_tokens(id, user_id, purpose, token_hash, expires_at, used, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`),
		tok.ID, tok.UserID, tok.Purpose, tok.TokenHash, tok.ExpiresAt, tok.Used, tok.CreatedAt,
	)
	return err
}

func (s *tokenStore) Find(ctx context.Context, id string) (*Token, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		`select id, user_id, purpose, token_hash, expires_at, used, created_at
		 from auth_tokens where id=$1`), id)
	var t Token
	if err := row.Scan(&t.ID, &t.UserID, &t.Purpose, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *tokenStore) MarkUsed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`update auth_tokens set used=true where id=$1 and used=false`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidToken
	}
	return nil
}

func (s *tokenStore) DeleteExpired(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`delete from auth_tokens where expires_at < $1 or used=true`), before)
	return err
}
