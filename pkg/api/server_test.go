package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/fishdeas/fishdeas/pkg/auth"
	"github.com/fishdeas/fishdeas/pkg/identity"
	"github.com/fishdeas/fishdeas/pkg/inference"
	"github.com/fishdeas/fishdeas/pkg/middleware"
	"github.com/fishdeas/fishdeas/pkg/notify"
	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// fixture is a complete in-memory server for end-to-end handler tests
type fixture struct {
	server   *Server
	store    *storage.MemoryStore
	objects  *storage.MemoryObjectStore
	provider *identity.MemoryProvider
	notifier *notify.LogNotifier
	tokens   *auth.TokenManager
}

// session is one logged-in caller
type session struct {
	userID string
	email  string
	bearer string
	cookie *http.Cookie
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewMemoryStore()
	objects := storage.NewMemoryObjectStore("")
	provider := identity.NewMemoryProvider()

	obsLogger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	notifier := notify.NewLogNotifier(obsLogger)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	tokens := auth.NewTokenManager([]byte("test-bearer-secret"), []byte("test-session-secret"))
	issuer := auth.NewSessionIssuer(store, tokens)
	hasher := auth.NewPasswordHasher()
	resets := auth.NewResetCodeManager(store, store, provider, notifier, hasher, obsLogger)
	gate := middleware.NewVerificationGate(tokens, store, provider, obsLogger, nil)

	// Stand-in for the Python model: copies input to output.
	scriptDir := t.TempDir()
	script := filepath.Join(scriptDir, "detect.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncp \"$1\" \"$3\"\n"), 0o700))
	runner := inference.NewRunner(inference.Config{
		PythonBin:  "/bin/sh",
		ScriptPath: script,
		WorkDir:    t.TempDir(),
		Timeout:    10 * time.Second,
	}, obsLogger, nil)

	server := NewServer(Dependencies{
		Users:      store,
		Codes:      store,
		Articles:   store,
		Detections: store,
		Objects:    objects,
		Provider:   provider,
		Notifier:   notifier,
		Tokens:     tokens,
		Issuer:     issuer,
		Resets:     resets,
		Gate:       gate,
		Runner:     runner,
		Logger:     logger,
	})

	return &fixture{
		server:   server,
		store:    store,
		objects:  objects,
		provider: provider,
		notifier: notifier,
		tokens:   tokens,
	}
}

// do runs one request through the full router
func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

// postJSON builds a JSON request
func postJSON(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// register creates a verified account ready to log in
func (f *fixture) register(t *testing.T, name, email, password string) string {
	t.Helper()

	rec := f.do(postJSON(t, http.MethodPost, "/users/register", map[string]string{
		"name":            name,
		"email":           email,
		"password":        password,
		"confirmPassword": password,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp registerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Stand in for the user clicking the verification link.
	f.provider.SetVerified(email, true)
	return resp.RegisterResult.ID
}

// login authenticates and returns the issued credentials
func (f *fixture) login(t *testing.T, email, password string) *session {
	t.Helper()

	rec := f.do(postJSON(t, http.MethodPost, "/users/login", map[string]string{
		"email":    email,
		"password": password,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login must set the session cookie")
	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	return &session{
		userID: resp.LoginResult.ID,
		email:  resp.LoginResult.Email,
		bearer: resp.LoginResult.Token,
		cookie: cookie,
	}
}

// signup registers and logs in a fresh account
func (f *fixture) signup(t *testing.T, name, email, password string) *session {
	t.Helper()
	f.register(t, name, email, password)
	return f.login(t, email, password)
}

// authed attaches the session's credentials to a request
func (s *session) authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+s.bearer)
	req.AddCookie(s.cookie)
	return req
}

// multipartForm builds a multipart request body with an image part
func multipartForm(t *testing.T, fields map[string]string, imageName string, image []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, mw.WriteField(key, value))
	}
	if imageName != "" {
		part, err := mw.CreateFormFile("image", imageName)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// envelopeOf decodes just the common envelope
func envelopeOf(t *testing.T, rec *httptest.ResponseRecorder) (bool, string) {
	t.Helper()
	var env struct {
		Error   bool   `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error, env.Message
}
