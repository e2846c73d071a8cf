package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// ResetCodeStore implements storage.ResetCodeStore on PostgreSQL. Each
// user has exactly one row, created as a placeholder at registration
// and overwritten whenever a new code is issued.
type ResetCodeStore struct {
	db  *sql.DB
	ops opTracker
}

// NewResetCodeStore creates a reset code store on the given connection;
// metrics may be nil
func NewResetCodeStore(db *sql.DB, metrics *observability.Metrics) *ResetCodeStore {
	return &ResetCodeStore{db: db, ops: opTracker{metrics: metrics}}
}

func (s *ResetCodeStore) InitResetCode(ctx context.Context, userID string) (err error) {
	defer s.ops.track("init_reset_code", &err)()
	query := `
		INSERT INTO reset_codes (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to init reset code: %w", err)
	}
	return nil
}

func (s *ResetCodeStore) SaveResetCode(ctx context.Context, code *storage.ResetCode) (err error) {
	defer s.ops.track("save_reset_code", &err)()
	query := `
		INSERT INTO reset_codes (user_id, code_hash, expires_at, used)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    expires_at = EXCLUDED.expires_at,
		    used = EXCLUDED.used
	`
	_, err = s.db.ExecContext(ctx, query, code.UserID, code.CodeHash, code.ExpiresAt, code.Used)
	if err != nil {
		return fmt.Errorf("failed to save reset code: %w", err)
	}
	return nil
}

func (s *ResetCodeStore) GetResetCode(ctx context.Context, userID string) (code *storage.ResetCode, err error) {
	defer s.ops.track("get_reset_code", &err)()
	query := `
		SELECT user_id, code_hash, expires_at, used
		FROM reset_codes
		WHERE user_id = $1
	`

	code = &storage.ResetCode{}
	err = s.db.QueryRowContext(ctx, query, userID).Scan(
		&code.UserID,
		&code.CodeHash,
		&code.ExpiresAt,
		&code.Used,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get reset code: %w", err)
	}
	return code, nil
}

func (s *ResetCodeStore) MarkUsed(ctx context.Context, userID string) (err error) {
	defer s.ops.track("mark_used", &err)()
	result, err := s.db.ExecContext(ctx, `UPDATE reset_codes SET used = TRUE WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark reset code used: %w", err)
	}
	return requireRow(result)
}

func (s *ResetCodeStore) PurgeExpired(ctx context.Context, before time.Time) (n int64, err error) {
	defer s.ops.track("purge_expired", &err)()
	query := `
		UPDATE reset_codes
		SET code_hash = '', expires_at = 'epoch', used = FALSE
		WHERE code_hash <> '' AND expires_at < $1
	`
	result, err := s.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired reset codes: %w", err)
	}
	n, err = result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
