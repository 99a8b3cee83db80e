// Package search implements the similarity search engine: it resolves a
// query (text, image bytes, or a reference record) to a vector, runs the
// nearest-neighbor lookup, and serves paginated, cached result pages
// behind a per-client rate limit.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/pictura-dev/pictura/internal/embedding"
	"github.com/pictura-dev/pictura/internal/store"
)

// ErrEmptyQuery is returned for a blank text query or empty image bytes.
var ErrEmptyQuery = errors.New("search query is empty")

// ErrRateLimited is returned when a client exceeds its search budget.
var ErrRateLimited = errors.New("too many search requests")

// unavailableNotice is the user-facing message on a degraded search.
const unavailableNotice = "Search is temporarily unavailable. Please try again."

// Index is the slice of the vector store the engine needs.
type Index interface {
	NearestNeighbors(ctx context.Context, vec pgvector.Vector, limit, offset int, excludeID *uuid.UUID) ([]store.Neighbor, error)
	Get(ctx context.Context, id uuid.UUID) (*store.Image, error)
}

// Item is one ranked search hit.
type Item struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Distance    float64   `json:"distance"`
	CreatedAt   time.Time `json:"created_at"`
}

// PageInfo describes the returned page.
type PageInfo struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Count   int  `json:"count"`
	HasNext bool `json:"has_next"`
}

// Result is a well-formed search response. Degraded results carry an
// advisory notice and an empty item list instead of an error.
type Result struct {
	Items    []Item   `json:"items"`
	Page     PageInfo `json:"page"`
	Degraded bool     `json:"degraded,omitempty"`
	Notice   string   `json:"notice,omitempty"`
}

// Engine executes similarity searches.
type Engine struct {
	index    Index
	provider embedding.Provider
	cache    *Cache
	limiter  *Limiter
	perPage  int
	logger   *slog.Logger
}

// NewEngine creates a search Engine.
func NewEngine(index Index, provider embedding.Provider, cache *Cache, limiter *Limiter, perPage int, logger *slog.Logger) *Engine {
	if perPage <= 0 {
		perPage = 10
	}
	return &Engine{
		index:    index,
		provider: provider,
		cache:    cache,
		limiter:  limiter,
		perPage:  perPage,
		logger:   logger,
	}
}

// SearchByText runs a free-text similarity search. The query is resolved
// to a vector through the embedding provider; provider failures produce
// a degraded (empty, noticed) result rather than an error.
func (e *Engine) SearchByText(ctx context.Context, clientKey, query string, page int) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if err := e.limiter.Allow(ctx, clientKey); err != nil {
		return nil, err
	}
	page = clampPage(page)

	cacheKey := TextKey(query, page)
	if cached, ok := e.cache.Get(ctx, cacheKey); ok {
		return cached, nil
	}

	vec, err := e.provider.EmbedText(ctx, query)
	if err != nil {
		e.logger.Warn("text query embedding failed", "error", err)
		return degraded(page, e.perPage), nil
	}

	return e.page(ctx, cacheKey, vec, page, nil)
}

// SearchByImage runs a query-by-example search over raw image bytes.
func (e *Engine) SearchByImage(ctx context.Context, clientKey string, data []byte, page int) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmptyQuery
	}
	if err := e.limiter.Allow(ctx, clientKey); err != nil {
		return nil, err
	}
	page = clampPage(page)

	cacheKey := ImageKey(data, page)
	if cached, ok := e.cache.Get(ctx, cacheKey); ok {
		return cached, nil
	}

	vec, err := e.provider.EmbedImage(ctx, data)
	if err != nil {
		e.logger.Warn("image query embedding failed", "error", err)
		return degraded(page, e.perPage), nil
	}

	return e.page(ctx, cacheKey, vec, page, nil)
}

// SimilarTo finds records nearest to an existing record's stored
// embedding, excluding the record itself. No provider call is involved.
// A missing record, or one without an embedding yet, yields an empty
// result rather than an error.
func (e *Engine) SimilarTo(ctx context.Context, id uuid.UUID, limit int) (*Result, error) {
	if limit <= 0 {
		limit = e.perPage
	}

	img, err := e.index.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return empty(1, limit), nil
	}
	if err != nil {
		e.logger.Warn("similar-to lookup failed", "id", id, "error", err)
		return degraded(1, limit), nil
	}
	if img.Embedding == nil {
		return empty(1, limit), nil
	}

	neighbors, err := e.index.NearestNeighbors(ctx, *img.Embedding, limit, 0, &id)
	if err != nil {
		e.logger.Warn("similar-to query failed", "id", id, "error", err)
		return degraded(1, limit), nil
	}

	r := &Result{
		Items: items(neighbors),
		Page:  PageInfo{Page: 1, PerPage: limit, Count: len(neighbors)},
	}
	return r, nil
}

// page runs the nearest-neighbor lookup for one result page, caches it,
// and returns it. One extra row is fetched to learn whether a next page
// exists.
func (e *Engine) page(ctx context.Context, cacheKey string, vec pgvector.Vector, page int, exclude *uuid.UUID) (*Result, error) {
	offset := (page - 1) * e.perPage
	neighbors, err := e.index.NearestNeighbors(ctx, vec, e.perPage+1, offset, exclude)
	if err != nil {
		e.logger.Warn("nearest-neighbor query failed", "error", err)
		return degraded(page, e.perPage), nil
	}

	hasNext := len(neighbors) > e.perPage
	if hasNext {
		neighbors = neighbors[:e.perPage]
	}

	r := &Result{
		Items: items(neighbors),
		Page: PageInfo{
			Page:    page,
			PerPage: e.perPage,
			Count:   len(neighbors),
			HasNext: hasNext,
		},
	}
	e.cache.Set(ctx, cacheKey, r)
	return r, nil
}

func items(neighbors []store.Neighbor) []Item {
	out := make([]Item, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, Item{
			ID:          n.Image.ID,
			Name:        n.Image.Name,
			Description: n.Image.Description,
			Distance:    n.Distance,
			CreatedAt:   n.Image.CreatedAt,
		})
	}
	return out
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func empty(page, perPage int) *Result {
	return &Result{
		Items: []Item{},
		Page:  PageInfo{Page: page, PerPage: perPage},
	}
}

func degraded(page, perPage int) *Result {
	r := empty(page, perPage)
	r.Degraded = true
	r.Notice = unavailableNotice
	return r
}
