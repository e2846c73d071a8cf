package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Dory"}`))
		var dest struct {
			Name string `json:"name"`
		}
		require.NoError(t, ParseJSON(req, &dest))
		assert.Equal(t, "Dory", dest.Name)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
		var dest map[string]string
		assert.Error(t, ParseJSON(req, &dest))
	})
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))

	var dest map[string]string
	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathString(t *testing.T) {
	router := mux.NewRouter()
	var got string
	var ok bool
	router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, ok = ParsePathStringOrError(w, r, "id")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/user-1", nil))

	assert.True(t, ok)
	assert.Equal(t, "user-1", got)
}

func TestParsePathStringMissing(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := ParsePathStringOrError(w, req, "id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireNonEmpty(t *testing.T) {
	w := httptest.NewRecorder()
	assert.True(t, RequireNonEmpty(w, "value", "Field is required!"))

	w = httptest.NewRecorder()
	assert.False(t, RequireNonEmpty(w, "", "Field is required!"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Field is required!")
}
