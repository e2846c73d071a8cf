package api

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fishdeas/fishdeas/pkg/httputil"
	"github.com/fishdeas/fishdeas/pkg/inference"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// DetectionHandlers implements the /detections endpoints. Detections
// are private: every operation is scoped to the authenticated owner.
type DetectionHandlers struct {
	detections storage.DetectionStore
	objects    storage.ObjectStore
	runner     *inference.Runner
	logger     *logrus.Logger
}

// NewDetectionHandlers creates the detection handler group
func NewDetectionHandlers(deps Dependencies) *DetectionHandlers {
	return &DetectionHandlers{
		detections: deps.Detections,
		objects:    deps.Objects,
		runner:     deps.Runner,
		logger:     deps.Logger,
	}
}

// RegisterRoutes registers the detection routes on a gate-protected router
func (h *DetectionHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.getAll).Methods("GET")
	r.HandleFunc("/create", h.create).Methods("POST")
	r.HandleFunc("/detail/{id}", h.getByID).Methods("GET")
	r.HandleFunc("/delete/{id}", h.deleteByID).Methods("DELETE")
}

// create handles POST /detections/create: run the model over the
// uploaded image, store the annotated output and record the detection.
func (h *DetectionHandlers) create(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r)

	upload, ok := parseImageUpload(w, r)
	if !ok {
		return
	}
	model := r.FormValue("model_name")
	if !httputil.RequireNonEmpty(w, model, "Model is required!") {
		return
	}

	processed, err := h.runner.Process(r.Context(), upload.data, model, upload.fileName)
	if err != nil {
		httputil.WriteBadRequest(w, "Failed to process image!")
		return
	}

	imageURL, err := h.objects.PutObject(r.Context(), "detections/"+upload.fileName, bytes.NewReader(processed), upload.contentType)
	if err != nil {
		h.logger.Errorf("create detection: uploading image failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to create detection!")
		return
	}

	detection := &storage.Detection{
		ID:        uuid.New().String(),
		ImageURL:  imageURL,
		Model:     model,
		UserID:    ident.UserID,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.detections.CreateDetection(r.Context(), detection); err != nil {
		h.logger.Errorf("create detection: %v", err)
		httputil.WriteBadRequest(w, "Failed to create detection!")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, createDetectionResponse{
		Envelope:     httputil.Envelope{Message: "Successfully create detection!"},
		CreateResult: detection,
	})
}

// getAll handles GET /detections
func (h *DetectionHandlers) getAll(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r)

	detections, err := h.detections.ListDetections(r.Context(), ident.UserID)
	if err != nil {
		h.logger.Errorf("list detections: %v", err)
		httputil.WriteNotFoundError(w, "Detections not found!")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, detectionListResponse{
		Envelope:         httputil.Envelope{Message: "Successfully get detections!"},
		DetectionResults: detections,
	})
}

// getByID handles GET /detections/detail/{id}
func (h *DetectionHandlers) getByID(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	ident := identityFromContext(r)

	detection, err := h.detections.GetDetection(r.Context(), id, ident.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "Detection not found!")
			return
		}
		h.logger.Errorf("get detection: %v", err)
		httputil.WriteBadRequest(w, "Failed to get detection!")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, detectionResponse{
		Envelope:        httputil.Envelope{Message: "Successfully get detection!"},
		DetectionResult: detection,
	})
}

// deleteByID handles DELETE /detections/delete/{id}
func (h *DetectionHandlers) deleteByID(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	ident := identityFromContext(r)

	exist, err := h.detections.GetDetection(r.Context(), id, ident.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFoundError(w, "Detection not found!")
			return
		}
		h.logger.Errorf("delete detection: lookup failed: %v", err)
		httputil.WriteBadRequest(w, "Failed to delete detection!")
		return
	}

	if err := h.detections.DeleteDetection(r.Context(), id, ident.UserID); err != nil {
		h.logger.Errorf("delete detection: %v", err)
		httputil.WriteBadRequest(w, "Failed to delete detection!")
		return
	}

	if key := h.objects.ObjectKey(exist.ImageURL); key != "" {
		if err := h.objects.DeleteObject(r.Context(), key); err != nil {
			h.logger.Errorf("deleting detection image %s: %v", key, err)
		}
	}

	httputil.WriteSuccessMessage(w, "Successfully delete detection!")
}
