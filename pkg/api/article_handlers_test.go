package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var articleFields = map[string]string{
	"title":   "Keeping Neon Tetras",
	"content": "Soft water, dim light, schools of six or more.",
	"author":  "Dory",
	"date":    "2024-03-15",
}

// createArticle posts a valid article and returns it
func createArticle(t *testing.T, f *fixture, sess *session, fields map[string]string) *createArticleResponse {
	t.Helper()

	body, contentType := multipartForm(t, fields, "tetra.jpg", []byte("fake image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/articles/create", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(sess.authed(req))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp createArticleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

func TestCreateArticle(t *testing.T) {
	f := newFixture(t)
	sess := f.signup(t, "Dory", "dory@example.com", "blue-tang-1")

	t.Run("requires authentication", func(t *testing.T) {
		body, contentType := multipartForm(t, articleFields, "tetra.jpg", []byte("img"))
		req := httptest.NewRequest(http.MethodPost, "/articles/create", body)
		req.Header.Set("Content-Type", contentType)
		rec := f.do(req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("stores the article and its image", func(t *testing.T) {
		resp := createArticle(t, f, sess, articleFields)
		assert.Equal(t, "Successfully create article!", resp.Message)
		require.NotNil(t, resp.CreateResult)
		assert.Equal(t, "Keeping Neon Tetras", resp.CreateResult.Title)
		assert.NotEmpty(t, resp.CreateResult.ID)
		require.NotEmpty(t, resp.CreateResult.ImageURL)

		key := f.objects.ObjectKey(resp.CreateResult.ImageURL)
		data, ok := f.objects.Object(key)
		require.True(t, ok, "image must be in the object store")
		assert.Equal(t, []byte("fake image bytes"), data)
	})

	t.Run("requires an image", func(t *testing.T) {
		body, contentType := multipartForm(t, articleFields, "", nil)
		req := httptest.NewRequest(http.MethodPost, "/articles/create", body)
		req.Header.Set("Content-Type", contentType)
		rec := f.do(sess.authed(req))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		_, msg := envelopeOf(t, rec)
		assert.Equal(t, "Image is required!", msg)
	})

	t.Run("caps the image at one megabyte", func(t *testing.T) {
		big := bytes.Repeat([]byte("x"), maxImageBytes+1)
		body, contentType := multipartForm(t, articleFields, "huge.jpg", big)
		req := httptest.NewRequest(http.MethodPost, "/articles/create", body)
		req.Header.Set("Content-Type", contentType)
		rec := f.do(sess.authed(req))
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		_, msg := envelopeOf(t, rec)
		assert.Equal(t, "Image size must not exceed 1 MB!", msg)
	})

	t.Run("validates the date format", func(t *testing.T) {
		bad := map[string]string{
			"title":   "Bad Date",
			"content": "content",
			"author":  "Dory",
			"date":    "15/03/2024",
		}
		body, contentType := multipartForm(t, bad, "tetra.jpg", []byte("img"))
		req := httptest.NewRequest(http.MethodPost, "/articles/create", body)
		req.Header.Set("Content-Type", contentType)
		rec := f.do(sess.authed(req))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		_, msg := envelopeOf(t, rec)
		assert.Equal(t, "Valid date is required!", msg)
	})

	t.Run("requires a title", func(t *testing.T) {
		bad := map[string]string{
			"content": "content",
			"author":  "Dory",
			"date":    "2024-03-15",
		}
		body, contentType := multipartForm(t, bad, "tetra.jpg", []byte("img"))
		req := httptest.NewRequest(http.MethodPost, "/articles/create", body)
		req.Header.Set("Content-Type", contentType)
		rec := f.do(sess.authed(req))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		_, msg := envelopeOf(t, rec)
		assert.Equal(t, "Title is required!", msg)
	})
}

func TestGetArticles(t *testing.T) {
	f := newFixture(t)
	sess := f.signup(t, "Dory", "dory@example.com", "blue-tang-1")
	created := createArticle(t, f, sess, articleFields)

	t.Run("lists articles", func(t *testing.T) {
		rec := f.do(sess.authed(httptest.NewRequest(http.MethodGet, "/articles", nil)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp articleListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.ArticleResults, 1)
		assert.Equal(t, created.CreateResult.ID, resp.ArticleResults[0].ID)
	})

	t.Run("returns one article by id", func(t *testing.T) {
		rec := f.do(sess.authed(httptest.NewRequest(http.MethodGet, "/articles/detail/"+created.CreateResult.ID, nil)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp articleResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.ArticleResult)
		assert.Equal(t, "Keeping Neon Tetras", resp.ArticleResult.Title)
	})

	t.Run("404s an unknown id", func(t *testing.T) {
		rec := f.do(sess.authed(httptest.NewRequest(http.MethodGet, "/articles/detail/no-such-id", nil)))
		require.Equal(t, http.StatusNotFound, rec.Code)
		_, msg := envelopeOf(t, rec)
		assert.Equal(t, "Article not found!", msg)
	})
}

func TestSearchArticles(t *testing.T) {
	f := newFixture(t)
	sess := f.signup(t, "Dory", "dory@example.com", "blue-tang-1")
	createArticle(t, f, sess, articleFields)
	createArticle(t, f, sess, map[string]string{
		"title":   "Breeding Guppies",
		"content": "Livebearers need dense planting.",
		"author":  "Nemo",
		"date":    "2024-04-01",
	})

	t.Run("matches by title substring, case insensitive", func(t *testing.T) {
		rec := f.do(sess.authed(httptest.NewRequest(http.MethodGet, "/articles/search/tetras", nil)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp articleListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.ArticleResults, 1)
		assert.Equal(t, "Keeping Neon Tetras", resp.ArticleResults[0].Title)
	})

	t.Run("404s when nothing matches", func(t *testing.T) {
		rec := f.do(sess.authed(httptest.NewRequest(http.MethodGet, "/articles/search/goldfish", nil)))
		require.Equal(t, http.StatusNotFound, rec.Code)
		_, msg := envelopeOf(t, rec)
		assert.Equal(t, "Article not found!", msg)
	})
}

func TestUpdateArticle(t *testing.T) {
	f := newFixture(t)
	sess := f.signup(t, "Dory", "dory@example.com", "blue-tang-1")
	created := createArticle(t, f, sess, articleFields)
	oldKey := f.objects.ObjectKey(created.CreateResult.ImageURL)

	t.Run("replaces the record and the image", func(t *testing.T) {
		fields := map[string]string{
			"title":   "Keeping Neon Tetras, Revised",
			"content": "Updated content.",
			"author":  "Dory",
			"date":    "2024-05-01",
		}
		body, contentType := multipartForm(t, fields, "tetra-v2.jpg", []byte("new image bytes"))
		req := httptest.NewRequest(http.MethodPut, "/articles/update/"+created.CreateResult.ID, body)
		req.Header.Set("Content-Type", contentType)
		rec := f.do(sess.authed(req))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp updateArticleResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Keeping Neon Tetras, Revised", resp.UpdateResult.Title)
		assert.NotEqual(t, created.CreateResult.ImageURL, resp.UpdateResult.ImageURL)

		// The displaced image is gone, the replacement is stored.
		_, ok := f.objects.Object(oldKey)
		assert.False(t, ok, "old image must be deleted")
		data, ok := f.objects.Object(f.objects.ObjectKey(resp.UpdateResult.ImageURL))
		require.True(t, ok)
		assert.Equal(t, []byte("new image bytes"), data)

		stored, err := f.store.GetArticle(context.Background(), created.CreateResult.ID)
		require.NoError(t, err)
		assert.Equal(t, "Keeping Neon Tetras, Revised", stored.Title)
	})

	t.Run("404s an unknown id", func(t *testing.T) {
		body, contentType := multipartForm(t, articleFields, "tetra.jpg", []byte("img"))
		req := httptest.NewRequest(http.MethodPut, "/articles/update/no-such-id", body)
		req.Header.Set("Content-Type", contentType)
		rec := f.do(sess.authed(req))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeleteArticle(t *testing.T) {
	f := newFixture(t)
	sess := f.signup(t, "Dory", "dory@example.com", "blue-tang-1")
	created := createArticle(t, f, sess, articleFields)
	imageKey := f.objects.ObjectKey(created.CreateResult.ImageURL)

	t.Run("removes the record and the image", func(t *testing.T) {
		rec := f.do(sess.authed(httptest.NewRequest(http.MethodDelete, "/articles/delete/"+created.CreateResult.ID, nil)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		_, msg := envelopeOf(t, rec)
		assert.Equal(t, "Successfully delete article!", msg)

		_, err := f.store.GetArticle(context.Background(), created.CreateResult.ID)
		require.Error(t, err)
		_, ok := f.objects.Object(imageKey)
		assert.False(t, ok, "image must be deleted with the article")
	})

	t.Run("404s an already deleted article", func(t *testing.T) {
		rec := f.do(sess.authed(httptest.NewRequest(http.MethodDelete, "/articles/delete/"+created.CreateResult.ID, nil)))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}
