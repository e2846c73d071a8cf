package auth

import (
	"context"
	"fmt"

	"github.com/fishdeas/fishdeas/pkg/storage"
)

// SessionIssuer turns a validated credential into a token pair and
// records the session token on the user record.
type SessionIssuer struct {
	store  storage.CredentialStore
	tokens *TokenManager
}

// NewSessionIssuer creates a session issuer
func NewSessionIssuer(store storage.CredentialStore, tokens *TokenManager) *SessionIssuer {
	return &SessionIssuer{
		store:  store,
		tokens: tokens,
	}
}

// TokenPair is one issued session: the short-lived bearer token returned
// in the response body and the long-lived session token set as a cookie.
type TokenPair struct {
	BearerToken  string
	SessionToken string
}

// Issue mints a fresh token pair for the identity and persists the
// session token, displacing any previously live session for that user.
func (si *SessionIssuer) Issue(ctx context.Context, identity Identity) (*TokenPair, error) {
	sessionToken, err := si.tokens.MintSession(identity)
	if err != nil {
		return nil, fmt.Errorf("minting session token: %w", err)
	}

	bearerToken, err := si.tokens.MintBearer(identity)
	if err != nil {
		return nil, fmt.Errorf("minting bearer token: %w", err)
	}

	if err := si.store.UpdateSessionToken(ctx, identity.UserID, sessionToken); err != nil {
		return nil, fmt.Errorf("storing session token: %w", err)
	}

	return &TokenPair{
		BearerToken:  bearerToken,
		SessionToken: sessionToken,
	}, nil
}

// Reissue mints a fresh bearer token without touching the stored session
// token. The caller must already have proven that it holds the session
// cookie currently on record; this is the sliding-window refresh.
func (si *SessionIssuer) Reissue(ctx context.Context, identity Identity) (string, error) {
	bearerToken, err := si.tokens.MintBearer(identity)
	if err != nil {
		return "", fmt.Errorf("minting bearer token: %w", err)
	}
	return bearerToken, nil
}

// Revoke clears the stored session token, invalidating the live session
func (si *SessionIssuer) Revoke(ctx context.Context, userID string) error {
	if err := si.store.UpdateSessionToken(ctx, userID, ""); err != nil {
		return fmt.Errorf("clearing session token: %w", err)
	}
	return nil
}
