package settings

import (
	"context"
	"database/sql"
	"time"

	"kars.dev/internal/store"
)

var _ Store = (*SQLStore)(nil)

// SQLStore implements Store on the settings table.
type SQLStore struct {
	db *store.DB
}

func NewSQLStore(db *store.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.db.Rebind(
		`select value from settings where key=$1`), key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(value), nil
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte, updatedAt time.Time) error {
	// Upsert syntax is shared by PostgreSQL and SQLite.
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`insert into settings(key, value, updated_at) values($1,$2,$3)
		 on conflict(key) do update set value=excluded.value, updated_at=excluded.updated_at`),
		key, string(value), updatedAt,
	)
	return err
}

func (s *SQLStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select key from settings order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
