package passkey

import (
	"context"
	"encoding/json"
	"fmt"

	"kars.dev/internal/ids"
	"kars.dev/internal/store"
)

var _ Store = (*SQLStore)(nil)

// SQLStore persists credentials as JSON documents; the WebAuthn credential
// structure has no relational consumers.
type SQLStore struct {
	db *store.DB
}

func NewSQLStore(db *store.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, c *Credential) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	raw, err := json.Marshal(c.Credential)
	if err != nil {
		return fmt.Errorf("passkey: encode credential: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`insert into passkey_credentials(id, user_id, name, credential, created_at, last_used_at)
		 values($1,$2,$3,$4,$5,$6)`),
		c.ID, c.UserID, c.Name, string(raw), c.CreatedAt, c.LastUsedAt,
	)
	return err
}

func (s *SQLStore) ListByUser(ctx context.Context, userID string) ([]*Credential, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`select id, user_id, name, credential, created_at, last_used_at
		 from passkey_credentials where user_id=$1 order by created_at`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		var c Credential
		var raw string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &raw, &c.CreatedAt, &c.LastUsedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &c.Credential); err != nil {
			return nil, fmt.Errorf("passkey: decode credential %s: %w", c.ID, err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLStore) Update(ctx context.Context, c *Credential) error {
	raw, err := json.Marshal(c.Credential)
	if err != nil {
		return fmt.Errorf("passkey: encode credential: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`update passkey_credentials set name=$1, credential=$2, last_used_at=$3 where id=$4`),
		c.Name, string(raw), c.LastUsedAt, c.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`delete from passkey_credentials where id=$1`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
