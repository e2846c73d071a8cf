package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// BearerTokenTTL is the validity window of the short-lived bearer
	// token presented in the Authorization header
	BearerTokenTTL = 10 * time.Minute
	// SessionTokenTTL is the validity window of the long-lived session
	// token held in the HTTP-only cookie
	SessionTokenTTL = 24 * time.Hour
)

// Identity is the {user id, email} pair embedded in both tokens
type Identity struct {
	UserID string
	Email  string
}

// Claims carries the identity inside a signed token
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager mints and verifies the two token kinds. The bearer and
// session tokens are signed with distinct secrets so neither can stand
// in for the other.
type TokenManager struct {
	bearerSecret  []byte
	sessionSecret []byte
}

// NewTokenManager creates a token manager with the two signing secrets
func NewTokenManager(bearerSecret, sessionSecret []byte) *TokenManager {
	return &TokenManager{
		bearerSecret:  bearerSecret,
		sessionSecret: sessionSecret,
	}
}

// MintBearer mints a bearer token valid for BearerTokenTTL
func (tm *TokenManager) MintBearer(identity Identity) (string, error) {
	return mint(identity, tm.bearerSecret, BearerTokenTTL)
}

// MintSession mints a session token valid for SessionTokenTTL
func (tm *TokenManager) MintSession(identity Identity) (string, error) {
	return mint(identity, tm.sessionSecret, SessionTokenTTL)
}

func mint(identity Identity, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: identity.UserID,
		Email:  identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			// Timestamps are second-precision, so two logins in the
			// same second would otherwise mint identical tokens and the
			// new session could not displace the old one.
			ID: uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyBearer verifies a bearer token and returns the embedded identity.
// Returns ErrTokenExpired when the signature is good but the token is
// past its expiry, ErrTokenInvalid otherwise.
func (tm *TokenManager) VerifyBearer(tokenString string) (*Identity, error) {
	return verify(tokenString, tm.bearerSecret)
}

// VerifySession verifies a session cookie token, with the same error
// classification as VerifyBearer
func (tm *TokenManager) VerifySession(tokenString string) (*Identity, error) {
	return verify(tokenString, tm.sessionSecret)
}

func verify(tokenString string, secret []byte) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
