package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fishdeas/fishdeas/pkg/httputil"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// ArticleHandlers implements the /articles endpoints
type ArticleHandlers struct {
	articles storage.ArticleStore
	objects  storage.ObjectStore
	logger   *logrus.Logger
}

// NewArticleHandlers creates the article handler group
func NewArticleHandlers(deps Dependencies) *ArticleHandlers {
	return &ArticleHandlers{
		articles: deps.Articles,
		objects:  deps.Objects,
		logger:   deps.Logger,
	}
}

// RegisterRoutes registers the article routes on a gate-protected router
func (h *ArticleHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.getAll).Methods("GET")
	r.HandleFunc("/detail/{id}", h.getByID).Methods("GET")
	r.HandleFunc("/create", h.create).Methods("POST")
	r.HandleFunc("/update/{id}", h.update).Methods("PUT")
	r.HandleFunc("/delete/{id}", h.deleteByID).Methods("DELETE")
	r.HandleFunc("/search/{title}", h.search).Methods("GET")
}

// imageUpload is one validated multipart image field
type imageUpload struct {
	data        []byte
	fileName    string
	contentType string
}

// parseImageUpload extracts and validates the "image" field from a
// multipart form, writing the error response itself on failure
func parseImageUpload(w http.ResponseWriter, r *http.Request) (*imageUpload, bool) {
	if err := r.ParseMultipartForm(maxImageBytes + 512*1024); err != nil {
		httputil.WriteBadRequest(w, "Failed to upload image!")
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		httputil.WriteBadRequest(w, "Image is required!")
		return nil, false
	}
	defer file.Close()

	if header.Size > maxImageBytes {
		httputil.WritePayloadTooLarge(w, "Image size must not exceed 1 MB!")
		return nil, false
	}

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		httputil.WriteBadRequest(w, "Failed to upload image!")
		return nil, false
	}
	if len(data) > maxImageBytes {
		httputil.WritePayloadTooLarge(w, "Image size must not exceed 1 MB!")
		return nil, false
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &imageUpload{
		data:        data,
		fileName:    fmt.Sprintf("%s-%d", header.Filename, time.Now().UnixMilli()),
		contentType: contentType,
	}, true
}

// validateArticleForm checks the text fields shared by create and
// update, writing the response on failure
func validateArticleForm(w http.ResponseWriter, r *http.Request) bool {
	if !httputil.RequireNonEmpty(w, r.FormValue("title"), "Title is required!") {
		return false
	}
	if !httputil.RequireNonEmpty(w, r.FormValue("content"), "Content is required!") {
		return false
	}
	if !httputil.RequireNonEmpty(w, r.FormValue("author"), "Author is required!") {
		return false
	}
	date := r.FormValue("date")
	if date == "" {
		httputil.WriteValidationError(w, "Valid date is required!")
		return false
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		httputil.WriteValidationError(w, "Valid date is required!")
		return false
	}
	return true
}

// getAll handles GET /articles
func (h *ArticleHandlers) getAll(w http.ResponseWriter, r *http.Request) {
	articles, err := h.articles.ListArticles(r.Context())
	if err != nil {
		h.logger.Errorf("list articles: %v", err)
		httputil.WriteNotFoundError(w, "Article not found!")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, articleListResponse{
		Envelope:       httputil.Envelope{Message: "Successfully get articles!"},
		ArticleResults: articles,
	})
}

// getByID handles GET /articles/detail/{id}
func (h *ArticleHandlers) getByID(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	article, err := h.articles.GetArticle(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "Article not found!")
			return
		}
		h.logger.Errorf("get article: %v", err)
		httputil.WriteBadRequest(w, "Failed to get article!")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, articleResponse{
		Envelope:      httputil.Envelope{Message: "Successfully get article!"},
		ArticleResult: article,
	})
}

// create handles POST /articles/create
func (h *ArticleHandlers) create(w http.ResponseWriter, r *http.Request) {
	upload, ok := parseImageUpload(w, r)
	if !ok {
		return
	}
	if !validateArticleForm(w, r) {
		return
	}

	imageURL, err := h.objects.PutObject(r.Context(), "articles/"+upload.fileName, bytes.NewReader(upload.data), upload.contentType)
	if err != nil {
		h.logger.Errorf("create article: uploading image failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to create article!")
		return
	}

	article := &storage.Article{
		ID:       uuid.New().String(),
		Title:    r.FormValue("title"),
		Content:  r.FormValue("content"),
		Author:   r.FormValue("author"),
		ImageURL: imageURL,
		Date:     r.FormValue("date"),
	}
	if err := h.articles.CreateArticle(r.Context(), article); err != nil {
		h.logger.Errorf("create article: %v", err)
		httputil.WriteBadRequest(w, "Failed to create article!")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, createArticleResponse{
		Envelope:     httputil.Envelope{Message: "Successfully create article!"},
		CreateResult: article,
	})
}

// update handles PUT /articles/update/{id}. The previous image is
// deleted only after the new record is stored.
func (h *ArticleHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	upload, ok := parseImageUpload(w, r)
	if !ok {
		return
	}
	if !validateArticleForm(w, r) {
		return
	}

	exist, err := h.articles.GetArticle(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "Article not found!")
			return
		}
		h.logger.Errorf("update article: lookup failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to update article!")
		return
	}

	imageURL, err := h.objects.PutObject(r.Context(), "articles/"+upload.fileName, bytes.NewReader(upload.data), upload.contentType)
	if err != nil {
		h.logger.Errorf("update article: uploading image failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to update article!")
		return
	}

	article := &storage.Article{
		ID:       id,
		Title:    r.FormValue("title"),
		Content:  r.FormValue("content"),
		Author:   r.FormValue("author"),
		ImageURL: imageURL,
		Date:     r.FormValue("date"),
	}
	if err := h.articles.UpdateArticle(r.Context(), article); err != nil {
		h.logger.Errorf("update article: %v", err)
		httputil.WriteBadRequest(w, "Failed to update article!")
		return
	}

	h.deleteImage(r, exist.ImageURL)

	httputil.WriteJSON(w, http.StatusOK, updateArticleResponse{
		Envelope:     httputil.Envelope{Message: "Successfully update article!"},
		UpdateResult: article,
	})
}

// deleteByID handles DELETE /articles/delete/{id}
func (h *ArticleHandlers) deleteByID(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	exist, err := h.articles.GetArticle(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "Article not found!")
			return
		}
		h.logger.Errorf("delete article: lookup failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to delete article!")
		return
	}

	if err := h.articles.DeleteArticle(r.Context(), id); err != nil {
		h.logger.Errorf("delete article: %v", err)
		httputil.WriteBadRequest(w, "Failed to delete article!")
		return
	}

	h.deleteImage(r, exist.ImageURL)

	httputil.WriteSuccessMessage(w, "Successfully delete article!")
}

// search handles GET /articles/search/{title}
func (h *ArticleHandlers) search(w http.ResponseWriter, r *http.Request) {
	title, ok := httputil.ParsePathStringOrError(w, r, "title")
	if !ok {
		return
	}

	articles, err := h.articles.SearchArticles(r.Context(), title)
	if err != nil {
		h.logger.Errorf("search articles: %v", err)
		httputil.WriteBadRequest(w, "Failed to get article!")
		return
	}
	if len(articles) == 0 {
		httputil.WriteNotFoundError(w, "Article not found!")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, articleListResponse{
		Envelope:       httputil.Envelope{Message: "Successfully get article!"},
		ArticleResults: articles,
	})
}

// deleteImage removes a no-longer-referenced image. The record change
// has already committed, so a failed delete is logged and left for
// manual cleanup, never surfaced.
func (h *ArticleHandlers) deleteImage(r *http.Request, url string) {
	key := h.objects.ObjectKey(url)
	if key == "" {
		return
	}
	if err := h.objects.DeleteObject(r.Context(), key); err != nil {
		h.logger.Errorf("deleting old image %s: %v", key, err)
	}
}
