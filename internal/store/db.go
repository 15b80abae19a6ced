package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavor the pool talks to.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB wraps a sql.DB with the dialect needed for placeholder rebinding.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the configured engine. driver is "pgx" or "sqlite".
func Open(driver, dsn string) (*DB, error) {
	var dialect Dialect
	switch driver {
	case "pgx":
		dialect = Postgres
	case "sqlite":
		dialect = SQLite
		if !strings.Contains(dsn, "?") {
			// Busy timeout keeps concurrent request handlers from failing
			// immediately on SQLite's single-writer lock.
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if dialect == Postgres {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(15 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	} else {
		// SQLite serializes writers anyway.
		db.SetMaxOpenConns(1)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

// Wrap adopts an existing pool (used by sqlmock-backed tests).
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, Dialect: dialect}
}

// Rebind rewrites $N placeholders to ? for SQLite. Queries must number their
// placeholders in ascending textual order without reuse.
func (d *DB) Rebind(query string) string {
	if d.Dialect == Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('?')
		i = j - 1
	}
	return b.String()
}
