package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fishdeas/fishdeas/pkg/auth"
	"github.com/fishdeas/fishdeas/pkg/identity"
	"github.com/fishdeas/fishdeas/pkg/inference"
	"github.com/fishdeas/fishdeas/pkg/middleware"
	"github.com/fishdeas/fishdeas/pkg/notify"
	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// maxImageBytes caps uploaded images for articles and detections
const maxImageBytes = 1 << 20

// Dependencies carries everything the server needs. Metrics may be nil.
type Dependencies struct {
	Users      storage.CredentialStore
	Codes      storage.ResetCodeStore
	Articles   storage.ArticleStore
	Detections storage.DetectionStore
	Objects    storage.ObjectStore

	Provider identity.Provider
	Notifier notify.Notifier

	Tokens *auth.TokenManager
	Issuer *auth.SessionIssuer
	Resets *auth.ResetCodeManager
	Gate   *middleware.VerificationGate
	Runner *inference.Runner

	Logger  *logrus.Logger
	Metrics *observability.Metrics
}

// Server represents the FishDeas API server
type Server struct {
	router *mux.Router

	userHandlers      *UserHandlers
	articleHandlers   *ArticleHandlers
	detectionHandlers *DetectionHandlers
}

// NewServer creates a new API server
func NewServer(deps Dependencies) *Server {
	s := &Server{
		router:            mux.NewRouter(),
		userHandlers:      NewUserHandlers(deps),
		articleHandlers:   NewArticleHandlers(deps),
		detectionHandlers: NewDetectionHandlers(deps),
	}

	s.setupRoutes(deps.Gate)
	return s
}

// setupRoutes configures all the API routes. Everything except
// registration, login, the reset flow and token refresh sits behind the
// verification gate.
func (s *Server) setupRoutes(gate *middleware.VerificationGate) {
	s.userHandlers.RegisterRoutes(s.router, gate)

	articles := s.router.PathPrefix("/articles").Subrouter()
	articles.Use(gate.Handler)
	s.articleHandlers.RegisterRoutes(articles)

	detections := s.router.PathPrefix("/detections").Subrouter()
	detections.Use(gate.Handler)
	s.detectionHandlers.RegisterRoutes(detections)
}

// Router returns the underlying router for middleware wrapping
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setSessionCookie attaches the session token as the HTTP-only cookie.
// Strict same-site keeps it off cross-origin requests entirely.
func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.SessionTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookie expires the session cookie
func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
