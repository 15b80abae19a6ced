package auth

import (
	"context"
	"fmt"
	"strings"
)

// User administration, exercised by the admin endpoints and the self-service
// profile update.

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.store.Users(ctx).Find(ctx, id)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.store.Users(ctx).FindByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
}

func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.Users(ctx).List(ctx)
}

// UpdateUser applies admin edits. Role and status values are validated;
// everything else is a plain overwrite.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	users := s.store.Users(ctx)
	u, err := users.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Role != nil {
		if !ValidRole(*upd.Role) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *upd.Role)
		}
		u.Role = *upd.Role
	}
	if upd.Status != nil {
		switch *upd.Status {
		case UserStatusActive, UserStatusDisabled:
			u.Status = *upd.Status
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *upd.Status)
		}
	}
	if upd.Name != nil {
		u.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.ManagerName != nil {
		u.ManagerName = strings.TrimSpace(*upd.ManagerName)
	}
	if upd.ManagerEmail != nil {
		u.ManagerEmail = strings.TrimSpace(strings.ToLower(*upd.ManagerEmail))
	}
	if upd.CompanyID != nil {
		u.CompanyID = strings.TrimSpace(*upd.CompanyID)
	}
	u.UpdatedAt = s.now().UTC()
	if err := users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.store.Users(ctx).Delete(ctx, id)
}
