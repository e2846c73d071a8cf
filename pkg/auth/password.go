package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used for both password hashes and reset-code
// hashes.
const DefaultBcryptCost = 10

// PasswordHasher provides bcrypt hashing and verification
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher creates a PasswordHasher with the default cost
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: DefaultBcryptCost}
}

// Hash generates a bcrypt hash of the given secret
func (h *PasswordHasher) Hash(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify reports whether the secret matches the hash
func (h *PasswordHasher) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
