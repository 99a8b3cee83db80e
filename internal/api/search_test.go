package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/pictura-dev/pictura/internal/embedding"
	"github.com/pictura-dev/pictura/internal/kv"
	"github.com/pictura-dev/pictura/internal/search"
	"github.com/pictura-dev/pictura/internal/store"
)

type stubIndex struct {
	images map[uuid.UUID]*store.Image
}

func (s *stubIndex) Get(_ context.Context, id uuid.UUID) (*store.Image, error) {
	img, ok := s.images[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return img, nil
}

func (s *stubIndex) NearestNeighbors(_ context.Context, vec pgvector.Vector, limit, _ int, excludeID *uuid.UUID) ([]store.Neighbor, error) {
	if len(vec.Slice()) == 0 {
		return nil, nil
	}
	var out []store.Neighbor
	for id, img := range s.images {
		if img.Embedding == nil {
			continue
		}
		if excludeID != nil && id == *excludeID {
			continue
		}
		out = append(out, store.Neighbor{Image: img, Distance: 0.1})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type stubProvider struct {
	err error
}

func (p *stubProvider) EmbedText(context.Context, string) (pgvector.Vector, error) {
	if p.err != nil {
		return pgvector.Vector{}, p.err
	}
	return pgvector.NewVector([]float32{1, 0}), nil
}

func (p *stubProvider) EmbedImage(context.Context, []byte) (pgvector.Vector, error) {
	if p.err != nil {
		return pgvector.Vector{}, p.err
	}
	return pgvector.NewVector([]float32{0, 1}), nil
}

func (p *stubProvider) Name() string { return "stub" }

func searchRouter(index search.Index, provider embedding.Provider, rateLimit int) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := search.NewCache(kv.NewMemoryStore(), time.Minute)
	limiter := search.NewLimiter(kv.NewMemoryStore(), rateLimit, time.Minute, logger)
	engine := search.NewEngine(index, provider, cache, limiter, 10, logger)
	h := NewSearchHandler(engine, logger)

	r := chi.NewRouter()
	r.Post("/search/text", h.Text)
	r.Post("/search/image", h.Image)
	r.Get("/images/{id}/similar", h.Similar)
	return r
}

func seededIndex() (*stubIndex, uuid.UUID) {
	id := uuid.New()
	vec := pgvector.NewVector([]float32{1, 0})
	other := uuid.New()
	otherVec := pgvector.NewVector([]float32{0.9, 0.1})
	return &stubIndex{images: map[uuid.UUID]*store.Image{
		id:    {ID: id, Name: "a", BlobKey: "b1", Embedding: &vec},
		other: {ID: other, Name: "b", BlobKey: "b2", Embedding: &otherVec},
	}}, id
}

func TestSearchText_OK(t *testing.T) {
	index, _ := seededIndex()
	router := searchRouter(index, &stubProvider{}, 100)

	req := httptest.NewRequest(http.MethodPost, "/search/text", strings.NewReader(`{"query":"red bike"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body struct {
		Data search.Result `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(body.Data.Items))
	}
	if body.Data.Degraded {
		t.Error("unexpected degraded flag")
	}
}

func TestSearchText_EmptyQueryRejected(t *testing.T) {
	index, _ := seededIndex()
	router := searchRouter(index, &stubProvider{}, 100)

	req := httptest.NewRequest(http.MethodPost, "/search/text", strings.NewReader(`{"query":"   "}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "VALIDATION_ERROR") {
		t.Errorf("expected VALIDATION_ERROR code, got %s", rec.Body)
	}
}

func TestSearchText_RateLimited(t *testing.T) {
	index, _ := seededIndex()
	router := searchRouter(index, &stubProvider{}, 2)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/search/text", strings.NewReader(`{"query":"q"}`))
		req.RemoteAddr = "10.1.1.1:5000"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}
	if !strings.Contains(last.Body.String(), "RATE_LIMITED") {
		t.Errorf("expected RATE_LIMITED code, got %s", last.Body)
	}
}

func TestSearchText_ProviderDownDegrades(t *testing.T) {
	index, _ := seededIndex()
	router := searchRouter(index, &stubProvider{err: embedding.ErrProviderTimeout}, 100)

	req := httptest.NewRequest(http.MethodPost, "/search/text", strings.NewReader(`{"query":"anything"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Provider outages degrade the response; they never become a 5xx.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data search.Result `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Data.Degraded || body.Data.Notice == "" {
		t.Errorf("expected degraded result with notice, got %+v", body.Data)
	}
	if len(body.Data.Items) != 0 {
		t.Errorf("expected no items, got %d", len(body.Data.Items))
	}
}

func TestSearchImage_OK(t *testing.T) {
	index, _ := seededIndex()
	router := searchRouter(index, &stubProvider{}, 100)

	req := httptest.NewRequest(http.MethodPost, "/search/image", strings.NewReader("raw image bytes"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestSearchImage_EmptyBodyRejected(t *testing.T) {
	index, _ := seededIndex()
	router := searchRouter(index, &stubProvider{}, 100)

	req := httptest.NewRequest(http.MethodPost, "/search/image", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSimilar_OK(t *testing.T) {
	index, id := seededIndex()
	router := searchRouter(index, &stubProvider{}, 100)

	req := httptest.NewRequest(http.MethodGet, "/images/"+id.String()+"/similar", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body struct {
		Data search.Result `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, it := range body.Data.Items {
		if it.ID == id {
			t.Error("similar results must exclude the reference image")
		}
	}
}

func TestSimilar_BadID(t *testing.T) {
	index, _ := seededIndex()
	router := searchRouter(index, &stubProvider{}, 100)

	req := httptest.NewRequest(http.MethodGet, "/images/not-a-uuid/similar", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSimilar_MissingImageEmptyResult(t *testing.T) {
	index, _ := seededIndex()
	router := searchRouter(index, &stubProvider{}, 100)

	req := httptest.NewRequest(http.MethodGet, "/images/"+uuid.NewString()+"/similar", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data search.Result `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data.Items) != 0 {
		t.Errorf("expected empty result, got %d items", len(body.Data.Items))
	}
}
