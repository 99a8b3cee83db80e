package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pictura-dev/pictura/internal/blob"
	"github.com/pictura-dev/pictura/internal/gallery"
	"github.com/pictura-dev/pictura/internal/store"
)

const defaultListPageSize = 10

// ImageHandler serves the image record endpoints.
type ImageHandler struct {
	service   *gallery.Service
	blobs     *blob.Store
	tokenizer *blob.Tokenizer
	logger    *slog.Logger
}

// NewImageHandler creates an ImageHandler.
func NewImageHandler(service *gallery.Service, blobs *blob.Store, tokenizer *blob.Tokenizer, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{
		service:   service,
		blobs:     blobs,
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// imageView is the JSON shape of a record, with a signed file URL.
type imageView struct {
	*store.Image
	HasEmbedding bool   `json:"has_embedding"`
	FileURL      string `json:"file_url,omitempty"`
}

func (h *ImageHandler) view(img *store.Image) imageView {
	v := imageView{Image: img, HasEmbedding: img.Embedding != nil}
	if img.HasFile() && h.tokenizer != nil {
		if tok, err := h.tokenizer.Mint(img.BlobKey); err == nil {
			v.FileURL = "/api/v1/files/" + tok
		}
	}
	return v
}

// Create handles POST /images (multipart form: name, description, file).
func (h *ImageHandler) Create(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "An image file is required")
		return
	}
	defer file.Close()

	in := gallery.CreateInput{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		File:        file,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}

	img, err := h.service.Create(r.Context(), in, false)
	switch {
	case errors.Is(err, gallery.ErrMissingFile), errors.Is(err, gallery.ErrFileTooLarge):
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	case err != nil:
		h.logger.Error("image creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create image")
		return
	}

	writeSuccess(w, http.StatusCreated, h.view(img))
}

// List handles GET /images?page=N.
func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	images, err := h.service.List(r.Context(), defaultListPageSize, (page-1)*defaultListPageSize)
	if err != nil {
		h.logger.Error("image list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list images")
		return
	}

	views := make([]imageView, 0, len(images))
	for _, img := range images {
		views = append(views, h.view(img))
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"images": views,
		"page":   page,
	})
}

// Get handles GET /images/{id}.
func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	img, err := h.service.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Image not found")
		return
	}
	if err != nil {
		h.logger.Error("image fetch failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch image")
		return
	}

	writeSuccess(w, http.StatusOK, h.view(img))
}

// Update handles PUT /images/{id} with a JSON body of name/description.
func (h *ImageHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body")
		return
	}

	err := h.service.UpdateText(r.Context(), id, body.Name, body.Description)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Image not found")
		return
	}
	if err != nil {
		h.logger.Error("image update failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update image")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"id": id})
}

// Delete handles DELETE /images/{id}.
func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	err := h.service.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Image not found")
		return
	}
	if err != nil {
		h.logger.Error("image delete failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete image")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// File handles GET /files/{token}: verifies the signed token and
// streams the blob it grants access to.
func (h *ImageHandler) File(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	key, err := h.tokenizer.Verify(token)
	if err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Invalid or expired download token")
		return
	}

	data, contentType, err := h.blobs.Get(r.Context(), key)
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "File not found")
		return
	}
	if err != nil {
		h.logger.Error("blob fetch failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch file")
		return
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid image ID")
		return uuid.Nil, false
	}
	return id, true
}
