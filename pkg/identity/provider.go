// Package identity integrates the external identity provider: the
// authoritative source of "email verified" state and the system of
// record mirrored on every password change. The provider is never
// queried for passwords; the local credential store remains what login
// checks against.
package identity

import "context"

// Provider is the external identity provider
type Provider interface {
	// CreateUser mirrors a newly registered account
	CreateUser(ctx context.Context, id, name, email, passwordHash string) error
	// UpdateDisplayName mirrors a profile rename
	UpdateDisplayName(ctx context.Context, id, name string) error
	// UpdatePassword mirrors a password change
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	// EmailVerified reports whether the provider has seen the email
	// verified
	EmailVerified(ctx context.Context, email string) (bool, error)
	// VerificationLink mints the link sent in the verification email
	VerificationLink(ctx context.Context, email string) (string, error)
}
