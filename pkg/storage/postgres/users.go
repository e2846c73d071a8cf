package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// uniqueViolation is the class 23 error raised when an insert hits the
// unique email index
const uniqueViolation = "23505"

// UserStore implements storage.CredentialStore on PostgreSQL. Email
// uniqueness is enforced by the database index so concurrent
// registrations for the same address cannot both succeed.
type UserStore struct {
	db  *sql.DB
	ops opTracker
}

// NewUserStore creates a user store on the given connection; metrics may
// be nil
func NewUserStore(db *sql.DB, metrics *observability.Metrics) *UserStore {
	return &UserStore{db: db, ops: opTracker{metrics: metrics}}
}

func (s *UserStore) CreateUser(ctx context.Context, user *storage.User) (err error) {
	defer s.ops.track("create_user", &err)()
	query := `
		INSERT INTO users (id, name, email, password_hash, verified, session_token)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = s.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Verified,
		user.SessionToken,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (s *UserStore) GetUser(ctx context.Context, id string) (user *storage.User, err error) {
	defer s.ops.track("get_user", &err)()
	query := `
		SELECT id, name, email, password_hash, verified, session_token
		FROM users
		WHERE id = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (user *storage.User, err error) {
	defer s.ops.track("get_user_by_email", &err)()
	query := `
		SELECT id, name, email, password_hash, verified, session_token
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *UserStore) UpdateName(ctx context.Context, id, name string) (err error) {
	defer s.ops.track("update_name", &err)()
	return s.updateField(ctx, "name", id, name)
}

func (s *UserStore) UpdateSessionToken(ctx context.Context, id, token string) (err error) {
	defer s.ops.track("update_session_token", &err)()
	return s.updateField(ctx, "session_token", id, token)
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) (err error) {
	defer s.ops.track("update_password", &err)()
	return s.updateField(ctx, "password_hash", id, passwordHash)
}

func (s *UserStore) MarkVerified(ctx context.Context, id string) (err error) {
	defer s.ops.track("mark_verified", &err)()
	result, err := s.db.ExecContext(ctx, `UPDATE users SET verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	return requireRow(result)
}

func (s *UserStore) scanUser(row *sql.Row) (*storage.User, error) {
	var user storage.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Verified,
		&user.SessionToken,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) updateField(ctx context.Context, column, id, value string) error {
	query := fmt.Sprintf(`UPDATE users SET %s = $1 WHERE id = $2`, column)
	result, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", column, err)
	}
	return requireRow(result)
}

// requireRow converts a zero-row update into ErrNotFound
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
