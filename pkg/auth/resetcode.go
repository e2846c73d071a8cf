package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/fishdeas/fishdeas/pkg/async"
	"github.com/fishdeas/fishdeas/pkg/identity"
	"github.com/fishdeas/fishdeas/pkg/notify"
	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

const (
	// ResetCodeLength is the number of digits in a reset code
	ResetCodeLength = 6
	// ResetCodeTTL is how long an issued code stays redeemable
	ResetCodeTTL = time.Hour
)

// ResetCodeManager generates, delivers and redeems the single-use
// password-reset codes.
type ResetCodeManager struct {
	users    storage.CredentialStore
	codes    storage.ResetCodeStore
	provider identity.Provider
	notifier notify.Notifier
	hasher   *PasswordHasher
	logger   *observability.Logger
}

// NewResetCodeManager creates a reset code manager
func NewResetCodeManager(
	users storage.CredentialStore,
	codes storage.ResetCodeStore,
	provider identity.Provider,
	notifier notify.Notifier,
	hasher *PasswordHasher,
	logger *observability.Logger,
) *ResetCodeManager {
	return &ResetCodeManager{
		users:    users,
		codes:    codes,
		provider: provider,
		notifier: notifier,
		hasher:   hasher,
		logger:   logger,
	}
}

// GenerateCode returns a fresh numeric reset code
func GenerateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generating code digit: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// RequestReset issues a new code for the account registered under email,
// overwriting any previous code, and asks the notifier to deliver it.
// Returns storage.ErrNotFound when no account exists for the email.
// Delivery is fire and forget: a failed send is logged, never rolled
// back.
func (m *ResetCodeManager) RequestReset(ctx context.Context, email string) error {
	user, err := m.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := GenerateCode(ResetCodeLength)
	if err != nil {
		return err
	}

	codeHash, err := m.hasher.Hash(code)
	if err != nil {
		return fmt.Errorf("hashing reset code: %w", err)
	}

	record := &storage.ResetCode{
		UserID:    user.ID,
		CodeHash:  codeHash,
		ExpiresAt: time.Now().Add(ResetCodeTTL),
		Used:      false,
	}
	if err := m.codes.SaveResetCode(ctx, record); err != nil {
		return fmt.Errorf("saving reset code: %w", err)
	}

	async.Go(m.logger, time.Minute, "reset code delivery", func(ctx context.Context) error {
		return m.notifier.SendResetCode(email, code)
	})

	return nil
}

// Redeem validates a reset code and, on success, changes the password,
// mirrors it to the identity provider, burns the code and revokes the
// live session so every device must log in again.
//
// The used check runs before the hash and expiry checks so a
// previously redeemed code is rejected uniformly, whether or not it
// would still match.
func (m *ResetCodeManager) Redeem(ctx context.Context, email, code, newPassword, confirmPassword string) error {
	user, err := m.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	record, err := m.codes.GetResetCode(ctx, user.ID)
	if err != nil {
		return err
	}

	if record.Used {
		return ErrCodeUsed
	}

	if record.CodeHash == "" || !m.hasher.Verify(code, record.CodeHash) {
		return ErrCodeInvalid
	}
	if time.Now().After(record.ExpiresAt) {
		return ErrCodeExpired
	}

	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}

	passwordHash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := m.codes.MarkUsed(ctx, user.ID); err != nil {
		return fmt.Errorf("burning reset code: %w", err)
	}

	if err := m.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	if err := m.provider.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return fmt.Errorf("mirroring password: %w", err)
	}

	if err := m.users.UpdateSessionToken(ctx, user.ID, ""); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}

	return nil
}
