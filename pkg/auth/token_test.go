package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = Identity{UserID: "user-1", Email: "dory@example.com"}

func newTestManager() *TokenManager {
	return NewTokenManager([]byte("bearer-secret"), []byte("session-secret"))
}

func TestMintAndVerify(t *testing.T) {
	tm := newTestManager()

	t.Run("bearer round trip", func(t *testing.T) {
		token, err := tm.MintBearer(testIdentity)
		require.NoError(t, err)

		ident, err := tm.VerifyBearer(token)
		require.NoError(t, err)
		assert.Equal(t, testIdentity, *ident)
	})

	t.Run("session round trip", func(t *testing.T) {
		token, err := tm.MintSession(testIdentity)
		require.NoError(t, err)

		ident, err := tm.VerifySession(token)
		require.NoError(t, err)
		assert.Equal(t, testIdentity, *ident)
	})

	t.Run("back-to-back mints are distinct", func(t *testing.T) {
		// A re-login within the same second must still displace the
		// previous session token, so identical identity and timestamps
		// may not collapse into the same token.
		first, err := tm.MintSession(testIdentity)
		require.NoError(t, err)
		second, err := tm.MintSession(testIdentity)
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("token kinds are not interchangeable", func(t *testing.T) {
		bearer, err := tm.MintBearer(testIdentity)
		require.NoError(t, err)
		session, err := tm.MintSession(testIdentity)
		require.NoError(t, err)

		_, err = tm.VerifySession(bearer)
		assert.ErrorIs(t, err, ErrTokenInvalid)
		_, err = tm.VerifyBearer(session)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestVerifyClassification(t *testing.T) {
	tm := newTestManager()

	t.Run("garbage is invalid", func(t *testing.T) {
		_, err := tm.VerifyBearer("not-a-jwt")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong secret is invalid", func(t *testing.T) {
		other := NewTokenManager([]byte("someone-else"), []byte("entirely"))
		token, err := other.MintBearer(testIdentity)
		require.NoError(t, err)

		_, err = tm.VerifyBearer(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired is reported as expired", func(t *testing.T) {
		token := mintExpired(t, []byte("bearer-secret"))
		_, err := tm.VerifyBearer(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("unexpected signing method is invalid", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1"})
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = tm.VerifyBearer(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

// mintExpired signs a token whose expiry is already in the past
func mintExpired(t *testing.T, secret []byte) string {
	t.Helper()

	claims := Claims{
		UserID: testIdentity.UserID,
		Email:  testIdentity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestPasswordHasher(t *testing.T) {
	hasher := NewPasswordHasher()

	hash, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, hasher.Verify("correct horse battery staple", hash))
	assert.False(t, hasher.Verify("wrong password", hash))
	assert.False(t, hasher.Verify("correct horse battery staple", "not-a-hash"))
}
