package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fishdeas/fishdeas/pkg/auth"
	"github.com/fishdeas/fishdeas/pkg/contextkeys"
	"github.com/fishdeas/fishdeas/pkg/httputil"
	"github.com/fishdeas/fishdeas/pkg/identity"
	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// SessionCookieName is the cookie that carries the long-lived session
// token. The cookie is HTTP-only and scoped SameSite=Strict so it never
// leaves first-party navigation.
const SessionCookieName = "session"

// Rejection reasons reported on the gate metrics. Each admission failure
// maps to exactly one reason so operators can tell token rot from
// credential abuse.
const (
	RejectMissingToken   = "missing_token"
	RejectMalformedToken = "malformed_token"
	RejectBearerExpired  = "bearer_expired"
	RejectSessionExpired = "session_expired"
	RejectStaleSession   = "stale_session"
	RejectUnverified     = "unverified_email"
)

// VerificationGate authenticates requests before they reach a handler.
// Admission requires a valid bearer token, a session cookie that matches
// the token stored on the account, and a verified email address. Each
// failure is classified so the client receives the most specific cause.
type VerificationGate struct {
	tokens   *auth.TokenManager
	users    storage.CredentialStore
	provider identity.Provider
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewVerificationGate creates a gate backed by the given token manager
// and credential store. The identity provider is consulted lazily when a
// locally-unverified account presents otherwise valid tokens; metrics
// may be nil.
func NewVerificationGate(tokens *auth.TokenManager, users storage.CredentialStore, provider identity.Provider, logger *observability.Logger, metrics *observability.Metrics) *VerificationGate {
	return &VerificationGate{
		tokens:   tokens,
		users:    users,
		provider: provider,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handler wraps next with the full admission check. On success the
// request context carries the authenticated identity; on failure the
// response is a 401 with a reason-specific message and next never runs.
func (g *VerificationGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := g.admit(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(contextkeys.WithIdentity(r.Context(), ident)))
	})
}

// admit runs the admission state machine and writes the rejection
// response itself when the request fails. The boolean reports whether
// the request may proceed.
func (g *VerificationGate) admit(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	raw := bearerToken(r)
	if raw == "" {
		g.reject(w, r, RejectMissingToken, http.StatusUnauthorized, "Authorization token not found!")
		return nil, false
	}

	ident, err := g.tokens.VerifyBearer(raw)
	if err != nil {
		reason, msg := g.classifyTokenFailure(r, err)
		g.reject(w, r, reason, http.StatusUnauthorized, msg)
		return nil, false
	}

	user, err := g.users.GetUser(r.Context(), ident.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			g.reject(w, r, RejectStaleSession, http.StatusUnauthorized, "Session is no longer active!")
			return nil, false
		}
		g.logger.WithError(err).Error("verification gate: user lookup failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Something went wrong!")
		return nil, false
	}

	if user.SessionToken == "" || user.SessionToken != sessionCookie(r) {
		g.reject(w, r, RejectStaleSession, http.StatusUnauthorized, "Session is no longer active!")
		return nil, false
	}

	if !user.Verified {
		verified, perr := g.refreshVerified(r.Context(), user)
		if perr != nil {
			g.logger.WithError(perr).Error("verification gate: identity provider check failed")
			httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Something went wrong!")
			return nil, false
		}
		if !verified {
			g.reject(w, r, RejectUnverified, http.StatusUnauthorized, "Please verify your email first!")
			return nil, false
		}
	}

	return ident, true
}

// classifyTokenFailure turns a bearer verification error into a reason
// and client message. An expired bearer is distinguished from an expired
// session by independently checking the cookie, so the caller learns
// which credential to renew.
func (g *VerificationGate) classifyTokenFailure(r *http.Request, bearerErr error) (string, string) {
	if !errors.Is(bearerErr, auth.ErrTokenExpired) {
		return RejectMalformedToken, "Token is not valid!"
	}
	cookie := sessionCookie(r)
	if cookie != "" {
		if _, err := g.tokens.VerifySession(cookie); errors.Is(err, auth.ErrTokenExpired) {
			return RejectSessionExpired, "Session has expired!"
		}
	}
	return RejectBearerExpired, "Bearer token has expired!"
}

// refreshVerified asks the identity provider whether the email has been
// confirmed since the flag was last stored, and persists the answer when
// it has. A store write failure is logged but does not block admission;
// the flag will be retried on the next request.
func (g *VerificationGate) refreshVerified(ctx context.Context, user *storage.User) (bool, error) {
	verified, err := g.provider.EmailVerified(ctx, user.Email)
	if err != nil || !verified {
		return false, err
	}
	if err := g.users.MarkVerified(ctx, user.ID); err != nil {
		g.logger.WithError(err).Warn("verification gate: persisting verified flag failed")
	}
	return true, nil
}

// AuthorizeSession validates the session cookie directly, for the
// endpoints that act on the session itself rather than on bearer-scoped
// resources. It verifies the cookie signature, confirms the token
// belongs to userID, and cross-checks it against the stored session
// token. The returned identity is the cookie's subject.
func (g *VerificationGate) AuthorizeSession(r *http.Request, userID string) (*auth.Identity, error) {
	cookie := sessionCookie(r)
	if cookie == "" {
		return nil, auth.ErrTokenInvalid
	}
	ident, err := g.tokens.VerifySession(cookie)
	if err != nil {
		return nil, err
	}
	if ident.UserID != userID {
		return nil, auth.ErrTokenInvalid
	}
	user, err := g.users.GetUser(r.Context(), ident.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, auth.ErrTokenInvalid
		}
		return nil, err
	}
	if user.SessionToken == "" || user.SessionToken != cookie {
		return nil, auth.ErrTokenInvalid
	}
	return ident, nil
}

func (g *VerificationGate) reject(w http.ResponseWriter, r *http.Request, reason string, status int, message string) {
	if g.metrics != nil {
		g.metrics.GateRejectionsTotal.WithLabelValues(reason).Inc()
	}
	g.logger.WithFields(map[string]interface{}{
		"reason": reason,
		"path":   r.URL.Path,
	}).Debug("verification gate: request rejected")
	httputil.WriteErrorMessage(w, status, message)
}

// bearerToken extracts the token from an "Authorization: Bearer x"
// header. Any other scheme is treated as absent.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// sessionCookie returns the raw session cookie value, or "" when the
// cookie is absent.
func sessionCookie(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
