package api

import (
	"net/http"

	"github.com/pictura-dev/pictura/internal/natsclient"
	"github.com/pictura-dev/pictura/internal/store"
)

// HealthHandler serves health and stats endpoints.
type HealthHandler struct {
	db     *store.DB
	images *store.ImageStore
	nats   *natsclient.Client
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db *store.DB, images *store.ImageStore, nats *natsclient.Client) *HealthHandler {
	return &HealthHandler{db: db, images: images, nats: nats}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}

	if err := h.db.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	if h.nats != nil && h.nats.IsConnected() {
		checks["nats"] = "ok"
	} else {
		status = "degraded"
		checks["nats"] = "disconnected"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// Stats handles GET /stats: gallery size and embedding coverage.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	total, err := h.images.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to gather stats")
		return
	}
	embedded, err := h.images.CountEmbedded(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to gather stats")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"images_total":    total,
		"images_embedded": embedded,
		"embedding_gap":   total - embedded,
	})
}
