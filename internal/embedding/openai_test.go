package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, Timeout: time.Second}
}

func embedPayload(dim int) map[string]any {
	vec := make([]float32, dim)
	vec[0] = 1
	return map[string]any{
		"data": []map[string]any{{"embedding": vec}},
	}
}

func TestOpenAIProvider_EmbedText(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Dimensions != Dimensions {
			t.Errorf("expected dimensions %d, got %d", Dimensions, req.Dimensions)
		}
		json.NewEncoder(w).Encode(embedPayload(Dimensions))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "", "", testRetryConfig())
	p.SetBaseURL(srv.URL)

	vec, err := p.EmbedText(context.Background(), "a mountain")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec.Slice()) != Dimensions {
		t.Fatalf("expected %d dims, got %d", Dimensions, len(vec.Slice()))
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestOpenAIProvider_AuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("wrong", "", "", testRetryConfig())
	p.SetBaseURL(srv.URL)

	_, err := p.EmbedText(context.Background(), "anything")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("auth failure should not be retried, got %d calls", calls.Load())
	}
}

func TestOpenAIProvider_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(embedPayload(Dimensions))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", "", "", testRetryConfig())
	p.SetBaseURL(srv.URL)

	vec, err := p.EmbedText(context.Background(), "retry me")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(vec.Slice()) != Dimensions {
		t.Fatalf("wrong dims")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestOpenAIProvider_EmbedImageCaptionsThenEmbeds(t *testing.T) {
	var embedCalls, chatCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/completions":
			chatCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{
					"message": map[string]any{
						"content": "Name: Red Bicycle Near Wall\nDescription: A red bicycle leaning against a brick wall.",
					},
				}},
			})
		case "/embeddings":
			embedCalls.Add(1)
			json.NewEncoder(w).Encode(embedPayload(Dimensions))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", "", "", testRetryConfig())
	p.SetBaseURL(srv.URL)

	vec, err := p.EmbedImage(context.Background(), []byte("fake image bytes"))
	if err != nil {
		t.Fatalf("embed image: %v", err)
	}
	if len(vec.Slice()) != Dimensions {
		t.Fatalf("wrong dims")
	}
	if chatCalls.Load() != 1 || embedCalls.Load() != 1 {
		t.Errorf("expected 1 chat + 1 embed call, got %d + %d", chatCalls.Load(), embedCalls.Load())
	}
}

func TestParseCaption(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantName string
		wantDesc string
		wantOK   bool
	}{
		{
			name:     "plain",
			content:  "Name: Sunset Over The Bay\nDescription: Orange light over calm water.",
			wantName: "Sunset Over The Bay",
			wantDesc: "Orange light over calm water.",
			wantOK:   true,
		},
		{
			name:     "asterisks stripped",
			content:  "Name: **Foggy Forest Path**\nDescription: *A narrow trail through mist.*",
			wantName: "Foggy Forest Path",
			wantDesc: "A narrow trail through mist.",
			wantOK:   true,
		},
		{
			name:    "missing description",
			content: "Name: Just A Name",
			wantOK:  false,
		},
		{
			name:    "unstructured reply",
			content: "I see a dog in a park.",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, desc, ok := ParseCaption(tt.content)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if desc != tt.wantDesc {
				t.Errorf("description = %q, want %q", desc, tt.wantDesc)
			}
		})
	}
}
