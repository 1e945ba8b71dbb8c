// Package sqlstore implements the user store on database/sql for SQLite and PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
)

var tracer = otel.Tracer("github.com/Kxd395/AxxessWebUI/pkg/storage/sqlstore")

const userColumns = `id, email, password_hash, name, role, profile_image_url, extra_sso, api_key, last_active_at, created_at, updated_at`

// Store implements storage.UserStore over a SQL database
type Store struct {
	cm      *ConnectionManager
	dialect Dialect
}

// New creates a store on top of cm. Call Migrate before first use.
func New(cm *ConnectionManager) *Store {
	return &Store{
		cm:      cm,
		dialect: cm.Dialect(),
	}
}

// Migrate creates the users table and indexes if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.cm.Primary().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "UserStore."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", s.dialect.Name()),
			attribute.String("db.operation", op),
			attribute.String("db.sql.table", "users"),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, auth.ErrUserNotFound) && !errors.Is(err, auth.ErrEmailTaken) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetUserByID implements auth.Store
func (s *Store) GetUserByID(ctx context.Context, id string) (user *auth.User, err error) {
	ctx, span := s.startSpan(ctx, "GetUserByID")
	defer func() { endSpan(span, err) }()

	return s.getOne(ctx, s.cm.Primary(), "id", id)
}

// GetUserByEmail implements auth.Store
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user *auth.User, err error) {
	ctx, span := s.startSpan(ctx, "GetUserByEmail")
	defer func() { endSpan(span, err) }()

	return s.getOne(ctx, s.cm.Primary(), "email", email)
}

// GetUserByAPIKey implements auth.Store
func (s *Store) GetUserByAPIKey(ctx context.Context, key string) (user *auth.User, err error) {
	ctx, span := s.startSpan(ctx, "GetUserByAPIKey")
	defer func() { endSpan(span, err) }()

	return s.getOne(ctx, s.cm.Primary(), "api_key", key)
}

// GetCredentials implements auth.Store
func (s *Store) GetCredentials(ctx context.Context, id string) (creds *auth.Credentials, err error) {
	ctx, span := s.startSpan(ctx, "GetCredentials")
	defer func() { endSpan(span, err) }()

	var (
		hash   string
		apiKey sql.NullString
	)
	query := s.dialect.Rebind(`SELECT password_hash, api_key FROM users WHERE id = ?`)
	err = s.cm.Primary().QueryRowContext(ctx, query, id).Scan(&hash, &apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}

	creds = &auth.Credentials{PasswordHash: hash}
	if apiKey.Valid {
		creds.APIKey = &apiKey.String
	}
	return creds, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Store) getOne(ctx context.Context, q querier, column, value string) (*auth.User, error) {
	query := s.dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`)

	user, err := scanUser(q.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}
	return user, nil
}

// CreateUser implements auth.Store
func (s *Store) CreateUser(ctx context.Context, u *auth.User, opts auth.CreateOptions) (err error) {
	ctx, span := s.startSpan(ctx, "CreateUser")
	defer func() { endSpan(span, err) }()

	tx, err := s.cm.Primary().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	role := u.Role
	if opts.PromoteFirstUser {
		if err := s.dialect.LockUsers(ctx, tx); err != nil {
			return err
		}

		var count int64
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}
		if count == 0 {
			role = auth.RoleAdmin
		}
	}
	span.SetAttributes(attribute.String("user.role", string(role)))

	query := s.dialect.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = tx.ExecContext(ctx, query,
		u.ID,
		u.Email,
		u.PasswordHash,
		u.Name,
		string(role),
		u.ProfileImageURL,
		nullString(u.ExtraSSO),
		nullString(u.APIKey),
		nullTime(u.LastActiveAt),
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("failed to commit user: %w", err)
	}

	u.Role = role
	return nil
}

// UpdateUser implements auth.Store
func (s *Store) UpdateUser(ctx context.Context, id string, upd auth.UserUpdate) (user *auth.User, err error) {
	ctx, span := s.startSpan(ctx, "UpdateUser")
	defer func() { endSpan(span, err) }()

	if upd.IsEmpty() {
		return s.getOne(ctx, s.cm.Primary(), "id", id)
	}

	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.ProfileImageURL != nil {
		add("profile_image_url", *upd.ProfileImageURL)
	}
	if upd.ExtraSSO != nil {
		add("extra_sso", *upd.ExtraSSO)
	}
	if upd.Role != nil {
		add("role", string(*upd.Role))
	}
	if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	query := s.dialect.Rebind(`UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	if err := s.execOne(ctx, query, args...); err != nil {
		return nil, err
	}

	return s.getOne(ctx, s.cm.Primary(), "id", id)
}

// SetAPIKey implements auth.Store
func (s *Store) SetAPIKey(ctx context.Context, id string, key *string) (err error) {
	ctx, span := s.startSpan(ctx, "SetAPIKey")
	defer func() { endSpan(span, err) }()

	query := s.dialect.Rebind(`UPDATE users SET api_key = ?, updated_at = ? WHERE id = ?`)
	return s.execOne(ctx, query, nullString(key), time.Now().UTC(), id)
}

// TouchLastActive implements auth.Store
func (s *Store) TouchLastActive(ctx context.Context, id string, at time.Time) (err error) {
	ctx, span := s.startSpan(ctx, "TouchLastActive")
	defer func() { endSpan(span, err) }()

	query := s.dialect.Rebind(`UPDATE users SET last_active_at = ? WHERE id = ?`)
	return s.execOne(ctx, query, at, id)
}

// CountUsers implements auth.Store. It reads from a replica when one is configured.
func (s *Store) CountUsers(ctx context.Context) (count int64, err error) {
	ctx, span := s.startSpan(ctx, "CountUsers")
	defer func() { endSpan(span, err) }()

	if err := s.cm.Replica().QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.cm.HealthCheck(ctx)
}

// Close closes the underlying connections
func (s *Store) Close() error {
	return s.cm.Close()
}

// DB returns the primary connection (used by health checks)
func (s *Store) DB() *sql.DB {
	return s.cm.Primary()
}

func (s *Store) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.cm.Primary().ExecContext(ctx, query, args...)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("unique constraint violated: %w", err)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u          auth.User
		role       string
		extraSSO   sql.NullString
		apiKey     sql.NullString
		lastActive sql.NullTime
	)

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&role,
		&u.ProfileImageURL,
		&extraSSO,
		&apiKey,
		&lastActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = auth.Role(role)
	if extraSSO.Valid {
		u.ExtraSSO = &extraSSO.String
	}
	if apiKey.Valid {
		u.APIKey = &apiKey.String
	}
	if lastActive.Valid {
		t := lastActive.Time
		u.LastActiveAt = &t
	}
	return &u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
