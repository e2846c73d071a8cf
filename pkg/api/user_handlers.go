package api

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fishdeas/fishdeas/pkg/async"
	"github.com/fishdeas/fishdeas/pkg/auth"
	"github.com/fishdeas/fishdeas/pkg/contextkeys"
	"github.com/fishdeas/fishdeas/pkg/httputil"
	"github.com/fishdeas/fishdeas/pkg/identity"
	"github.com/fishdeas/fishdeas/pkg/middleware"
	"github.com/fishdeas/fishdeas/pkg/notify"
	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// UserHandlers implements the /users endpoints: registration, login and
// everything that manages the account's single live session.
type UserHandlers struct {
	users    storage.CredentialStore
	codes    storage.ResetCodeStore
	provider identity.Provider
	notifier notify.Notifier
	tokens   *auth.TokenManager
	issuer   *auth.SessionIssuer
	resets   *auth.ResetCodeManager
	hasher   *auth.PasswordHasher
	gate     *middleware.VerificationGate
	logger   *logrus.Logger
	metrics  *observability.Metrics
}

// NewUserHandlers creates the user handler group
func NewUserHandlers(deps Dependencies) *UserHandlers {
	return &UserHandlers{
		users:    deps.Users,
		codes:    deps.Codes,
		provider: deps.Provider,
		notifier: deps.Notifier,
		tokens:   deps.Tokens,
		issuer:   deps.Issuer,
		resets:   deps.Resets,
		hasher:   auth.NewPasswordHasher(),
		gate:     deps.Gate,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}
}

// RegisterRoutes registers the /users routes. Registration, login, the
// reset flow and token refresh manage credentials themselves and stay
// outside the gate.
func (h *UserHandlers) RegisterRoutes(r *mux.Router, gate *middleware.VerificationGate) {
	r.HandleFunc("/users/register", h.register).Methods("POST")
	r.HandleFunc("/users/login", h.login).Methods("POST")
	r.HandleFunc("/users/send-reset-password", h.sendResetPassword).Methods("POST")
	r.HandleFunc("/users/reset-password", h.resetPassword).Methods("PUT")
	r.HandleFunc("/users/refresh-token/{id}", h.refreshToken).Methods("GET")

	protected := r.PathPrefix("/users").Subrouter()
	protected.Use(gate.Handler)
	protected.HandleFunc("/profile/{id}", h.profile).Methods("GET")
	protected.HandleFunc("/update/{id}", h.update).Methods("PUT")
	protected.HandleFunc("/change-password/{id}", h.changePassword).Methods("PUT")
	protected.HandleFunc("/logout/{id}", h.logout).Methods("PUT")
}

// register handles POST /users/register
func (h *UserHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if !httputil.RequireNonEmpty(w, req.Name, "Name is required!") {
		return
	}
	if !validEmail(w, req.Email) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "Password is required!") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ConfirmPassword, "Confirm password is required!") {
		return
	}
	if req.Password != req.ConfirmPassword {
		httputil.WriteBadRequest(w, "Password does not match!")
		return
	}

	ctx := r.Context()

	// Pre-check keeps the error message shape; the store's unique email
	// constraint is what actually closes the race.
	if _, err := h.users.GetUserByEmail(ctx, req.Email); err == nil {
		httputil.WriteBadRequest(w, "Email already exists!")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		h.logger.Errorf("register: email lookup failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to create user!")
		return
	}

	passwordHash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.logger.Errorf("register: hashing password failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to create user!")
		return
	}

	user := &storage.User{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: passwordHash,
	}

	if err := h.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			httputil.WriteBadRequest(w, "Email already exists!")
			return
		}
		h.logger.Errorf("register: creating user failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to create user!")
		return
	}

	if err := h.codes.InitResetCode(ctx, user.ID); err != nil {
		h.logger.Errorf("register: init reset code failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to create user!")
		return
	}

	if err := h.provider.CreateUser(ctx, user.ID, user.Name, user.Email, user.PasswordHash); err != nil {
		h.logger.Errorf("register: mirroring user failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to create user!")
		return
	}

	h.sendVerificationEmail(r, user.Email)

	httputil.WriteJSON(w, http.StatusCreated, registerResponse{
		Envelope:       httputil.Envelope{Message: "Successfully create user!"},
		RegisterResult: userSummary{ID: user.ID, Email: user.Email, Name: user.Name},
	})
}

// sendVerificationEmail delivers the verification link in the
// background; a failed send never fails the registration.
func (h *UserHandlers) sendVerificationEmail(r *http.Request, email string) {
	link, err := h.provider.VerificationLink(r.Context(), email)
	if err != nil {
		h.logger.Errorf("register: verification link failed: %v", err)
		return
	}
	async.Go(h.logger, time.Minute, "verification email", func(ctx context.Context) error {
		return h.notifier.SendVerification(email, link)
	})
}

// login handles POST /users/login
func (h *UserHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if !validEmail(w, req.Email) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "Password is required!") {
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Same message as a wrong password; existence must not leak.
			httputil.WriteUnauthorized(w, "Email or password is incorrect!")
			return
		}
		h.logger.Errorf("login: email lookup failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to login!")
		return
	}

	if !h.hasher.Verify(req.Password, user.PasswordHash) {
		httputil.WriteUnauthorized(w, "Email or password is incorrect!")
		return
	}

	pair, err := h.issuer.Issue(r.Context(), auth.Identity{UserID: user.ID, Email: user.Email})
	if err != nil {
		h.logger.Errorf("login: issuing session failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to login!")
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsIssuedTotal.WithLabelValues("login").Inc()
	}
	setSessionCookie(w, pair.SessionToken)

	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Envelope: httputil.Envelope{Message: "Successfully login!"},
		LoginResult: loginResult{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
			Token: pair.BearerToken,
		},
	})
}

// profile handles GET /users/profile/{id}
func (h *UserHandlers) profile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	ident := identityFromContext(r)

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteNotFoundError(w, "User not found!")
		return
	}
	if user.ID != ident.UserID {
		httputil.WriteUnauthorized(w, "You do not have permission to view this profile!")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, profileResponse{
		Envelope:      httputil.Envelope{Message: "Successfully get user!"},
		ProfileResult: userSummary{ID: user.ID, Name: user.Name, Email: user.Email},
	})
}

// update handles PUT /users/update/{id}
func (h *UserHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	ident := identityFromContext(r)

	var req updateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "Name is required!") {
		return
	}

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteNotFoundError(w, "User not found!")
		return
	}
	if user.ID != ident.UserID {
		httputil.WriteUnauthorized(w, "You do not have permission to update this profile!")
		return
	}

	if err := h.users.UpdateName(r.Context(), id, req.Name); err != nil {
		h.logger.Errorf("update: storing name failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to update user!")
		return
	}
	if err := h.provider.UpdateDisplayName(r.Context(), id, req.Name); err != nil {
		h.logger.Errorf("update: mirroring name failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to update user!")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, updateUserResponse{
		Envelope:     httputil.Envelope{Message: "Successfully update user!"},
		UpdateResult: userSummary{ID: user.ID, Name: req.Name, Email: user.Email},
	})
}

// changePassword handles PUT /users/change-password/{id}. The live
// session survives; only reset-password forces a re-login.
func (h *UserHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	ident := identityFromContext(r)

	var req changePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OldPassword, "Old password is required!") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.NewPassword, "New password is required!") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ConfirmPassword, "Confirm password is required!") {
		return
	}

	if id != ident.UserID {
		httputil.WriteUnauthorized(w, "You do not have permission to change this password!")
		return
	}

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteNotFoundError(w, "User not found!")
		return
	}

	if !h.hasher.Verify(req.OldPassword, user.PasswordHash) {
		httputil.WriteUnauthorized(w, "Old password is incorrect!")
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		httputil.WriteBadRequest(w, "New password and confirm password does not match!")
		return
	}

	passwordHash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		h.logger.Errorf("change password: hashing failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to change password!")
		return
	}

	if err := h.users.UpdatePassword(r.Context(), id, passwordHash); err != nil {
		h.logger.Errorf("change password: storing hash failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to change password!")
		return
	}
	if err := h.provider.UpdatePassword(r.Context(), id, passwordHash); err != nil {
		h.logger.Errorf("change password: mirroring hash failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to change password!")
		return
	}

	httputil.WriteSuccessMessage(w, "Successfully change password!")
}

// sendResetPassword handles POST /users/send-reset-password
func (h *UserHandlers) sendResetPassword(w http.ResponseWriter, r *http.Request) {
	var req sendResetPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !validEmail(w, req.Email) {
		return
	}

	if err := h.resets.RequestReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteBadRequest(w, "Email is not registered!")
			return
		}
		h.logger.Errorf("send reset password: %v", err)
		httputil.WriteBadRequest(w, "Failed to send code!")
		return
	}

	if h.metrics != nil {
		h.metrics.ResetCodesIssuedTotal.Inc()
	}
	httputil.WriteSuccessMessage(w, "Successfully send code!")
}

// resetPassword handles PUT /users/reset-password
func (h *UserHandlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !validEmail(w, req.Email) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Code, "Code is required!") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "Password is required!") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ConfirmPassword, "Confirm password is required!") {
		return
	}

	err := h.resets.Redeem(r.Context(), req.Email, req.Code, req.Password, req.ConfirmPassword)
	if err != nil {
		h.recordRedeem("failure")
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httputil.WriteBadRequest(w, "Email is not registered!")
		case errors.Is(err, auth.ErrCodeUsed):
			httputil.WriteBadRequest(w, "Code has already been used! Please request a new code.")
		case errors.Is(err, auth.ErrCodeInvalid), errors.Is(err, auth.ErrCodeExpired):
			httputil.WriteBadRequest(w, "Invalid or expired Code!")
		case errors.Is(err, auth.ErrPasswordMismatch):
			httputil.WriteBadRequest(w, "Password and confirm password does not match!")
		default:
			h.logger.Errorf("reset password: %v", err)
			httputil.WriteBadRequest(w, "Failed to reset password! Try again later.")
		}
		return
	}

	h.recordRedeem("success")
	clearSessionCookie(w)
	httputil.WriteSuccessMessage(w, "Successfully reset password!")
}

func (h *UserHandlers) recordRedeem(status string) {
	if h.metrics != nil {
		h.metrics.ResetCodeRedeemedTotal.WithLabelValues(status).Inc()
	}
}

// logout handles PUT /users/logout/{id}. The gate has already admitted
// the request; the cookie is re-checked against the path id so a caller
// can only end their own session.
func (h *UserHandlers) logout(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := r.Cookie(middleware.SessionCookieName); err != nil {
		httputil.WriteUnauthorized(w, "Cookies is not valid!")
		return
	}

	ident, err := h.gate.AuthorizeSession(r, id)
	if err != nil {
		httputil.WriteUnauthorized(w, "You cannot logout this user!")
		return
	}

	if err := h.issuer.Revoke(r.Context(), ident.UserID); err != nil {
		h.logger.Errorf("logout: revoking session failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to logout!")
		return
	}

	clearSessionCookie(w)
	httputil.WriteSuccessMessage(w, "Successfully logout!")
}

// refreshToken handles GET /users/refresh-token/{id}. The session
// cookie alone authorizes a fresh bearer token; any verification
// failure beyond a missing cookie or a foreign id is a 403.
func (h *UserHandlers) refreshToken(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil {
		httputil.WriteUnauthorized(w, "Cookies is not valid!")
		return
	}

	ident, err := h.tokens.VerifySession(cookie.Value)
	if err != nil {
		httputil.WriteForbidden(w, "Something went wrong!")
		return
	}
	if ident.UserID != id {
		httputil.WriteUnauthorized(w, "You cannot perform this action!")
		return
	}

	user, err := h.users.GetUser(r.Context(), ident.UserID)
	if err != nil || user.SessionToken == "" || user.SessionToken != cookie.Value {
		httputil.WriteForbidden(w, "Something went wrong!")
		return
	}

	bearer, err := h.issuer.Reissue(r.Context(), *ident)
	if err != nil {
		h.logger.Errorf("refresh token: %v", err)
		httputil.WriteForbidden(w, "Something went wrong!")
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsIssuedTotal.WithLabelValues("refresh").Inc()
	}
	httputil.WriteJSON(w, http.StatusOK, refreshTokenResponse{
		Envelope: httputil.Envelope{Message: "Token refreshed!"},
		Token:    bearer,
	})
}

// identityFromContext returns the identity the gate attached. Protected
// handlers are only reachable through the gate, so absence is a
// programming error and the empty identity fails every owner check.
func identityFromContext(r *http.Request) *auth.Identity {
	if ident, ok := r.Context().Value(contextkeys.IdentityKey).(*auth.Identity); ok {
		return ident
	}
	return &auth.Identity{}
}

// validEmail validates the email field, writing the error itself
func validEmail(w http.ResponseWriter, email string) bool {
	if email == "" {
		httputil.WriteValidationError(w, "Valid email is required!")
		return false
	}
	if _, err := mail.ParseAddress(email); err != nil {
		httputil.WriteValidationError(w, "Valid email is required!")
		return false
	}
	return true
}
