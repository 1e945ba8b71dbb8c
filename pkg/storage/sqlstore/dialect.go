package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect names
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// firstUserLockKey is the advisory lock taken while promoting the first user
const firstUserLockKey = 7_242_001

// Dialect captures the differences between the supported databases
type Dialect interface {
	Name() string
	DriverName() string
	DSN(url string) string

	// Rebind rewrites ? placeholders into the dialect's form
	Rebind(query string) string

	// Schema returns the DDL statements creating the users table
	Schema() []string

	// LockUsers serializes first-user promotion within tx
	LockUsers(ctx context.Context, tx *sql.Tx) error

	// IsUniqueViolation reports whether err is a unique constraint failure
	IsUniqueViolation(err error) bool
}

// DialectFor returns the dialect for a driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DialectSQLite, "sqlite3":
		return SQLite{}, nil
	case DialectPostgres, "postgresql":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Postgres is the PostgreSQL dialect (lib/pq)
type Postgres struct{}

func (Postgres) Name() string       { return DialectPostgres }
func (Postgres) DriverName() string { return "postgres" }
func (Postgres) DSN(url string) string {
	return url
}

func (Postgres) Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (Postgres) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id                TEXT PRIMARY KEY,
			email             TEXT NOT NULL,
			password_hash     TEXT NOT NULL,
			name              TEXT NOT NULL,
			role              TEXT NOT NULL,
			profile_image_url TEXT NOT NULL,
			extra_sso         TEXT,
			api_key           TEXT,
			last_active_at    TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (email)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_api_key_key ON users (api_key)`,
	}
}

func (Postgres) LockUsers(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", firstUserLockKey); err != nil {
		return fmt.Errorf("failed to acquire users lock: %w", err)
	}
	return nil
}

func (Postgres) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// SQLite is the SQLite dialect (mattn/go-sqlite3)
type SQLite struct{}

func (SQLite) Name() string       { return DialectSQLite }
func (SQLite) DriverName() string { return "sqlite3" }

func (SQLite) DSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_foreign_keys=on"
}

func (SQLite) Rebind(query string) string {
	return query
}

func (SQLite) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id                TEXT PRIMARY KEY,
			email             TEXT NOT NULL UNIQUE,
			password_hash     TEXT NOT NULL,
			name              TEXT NOT NULL,
			role              TEXT NOT NULL,
			profile_image_url TEXT NOT NULL,
			extra_sso         TEXT,
			api_key           TEXT UNIQUE,
			last_active_at    TIMESTAMP,
			created_at        TIMESTAMP NOT NULL,
			updated_at        TIMESTAMP NOT NULL
		)`,
	}
}

// LockUsers is a no-op: the pool holds a single connection, so transactions never interleave
func (SQLite) LockUsers(ctx context.Context, tx *sql.Tx) error {
	return nil
}

func (SQLite) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
