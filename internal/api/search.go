package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pictura-dev/pictura/internal/search"
)

// SearchHandler serves the similarity search endpoints.
type SearchHandler struct {
	engine *search.Engine
	logger *slog.Logger
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(engine *search.Engine, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{engine: engine, logger: logger}
}

// Text handles POST /search/text with a JSON body {"query": ..., "page": ...}.
func (h *SearchHandler) Text(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
		Page  int    `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body")
		return
	}

	result, err := h.engine.SearchByText(r.Context(), clientKey(r), body.Query, body.Page)
	if !h.writeSearchErr(w, err) {
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// Image handles POST /search/image: the request body is the raw query
// image, page comes from the query string.
func (h *SearchHandler) Image(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Could not read request body")
		return
	}

	result, err := h.engine.SearchByImage(r.Context(), clientKey(r), data, page)
	if !h.writeSearchErr(w, err) {
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// Similar handles GET /images/{id}/similar?limit=N.
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	result, err := h.engine.SimilarTo(r.Context(), id, limit)
	if !h.writeSearchErr(w, err) {
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// writeSearchErr translates engine errors into responses. Returns false
// when an error response was written.
func (h *SearchHandler) writeSearchErr(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, search.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Search query must not be empty")
	case errors.Is(err, search.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many search requests. Try again later.")
	default:
		h.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Search failed")
	}
	return false
}

// clientKey identifies the requesting client for rate limiting. RealIP
// middleware has already rewritten RemoteAddr from forwarding headers.
func clientKey(r *http.Request) string {
	return r.RemoteAddr
}
