package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, found, err := s.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if string(got) != "v" {
		t.Errorf("got %q, want %q", got, "v")
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, found, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = now.Add(30 * time.Second)
	if _, found, _ := s.Get(ctx, "k"); !found {
		t.Fatal("entry should still be live inside TTL")
	}

	now = now.Add(31 * time.Second)
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatal("entry should have expired")
	}
}

func TestMemoryStore_IncrementWithExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	for want := int64(1); want <= 3; want++ {
		n, err := s.IncrementWithExpiry(ctx, "counter", time.Minute)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if n != want {
			t.Fatalf("count = %d, want %d", n, want)
		}
	}

	// The window is anchored at the first increment; later increments
	// must not extend it.
	now = now.Add(61 * time.Second)
	n, err := s.IncrementWithExpiry(ctx, "counter", time.Minute)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if n != 1 {
		t.Errorf("expired counter should restart at 1, got %d", n)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"), 0)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Error("key should be gone")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("deleting a missing key should not error: %v", err)
	}
}
