package blob

import (
	"testing"
	"time"
)

func TestTokenizer_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tk, err := NewTokenizer(key, time.Minute)
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}

	token, err := tk.Mint("blob-abc123")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	got, err := tk.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != "blob-abc123" {
		t.Errorf("got %q, want %q", got, "blob-abc123")
	}
}

func TestTokenizer_WrongKeyRejected(t *testing.T) {
	keyA, _ := GenerateKey()
	keyB, _ := GenerateKey()
	a, _ := NewTokenizer(keyA, time.Minute)
	b, _ := NewTokenizer(keyB, time.Minute)

	token, err := a.Mint("blob-abc123")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Error("token signed with a different key must be rejected")
	}
}

func TestTokenizer_ExpiredRejected(t *testing.T) {
	key, _ := GenerateKey()
	tk, _ := NewTokenizer(key, time.Millisecond)

	token, err := tk.Mint("blob-abc123")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := tk.Verify(token); err == nil {
		t.Error("expired token must be rejected")
	}
}

func TestTokenizer_GarbageRejected(t *testing.T) {
	key, _ := GenerateKey()
	tk, _ := NewTokenizer(key, time.Minute)

	if _, err := tk.Verify("not-a-token"); err == nil {
		t.Error("garbage token must be rejected")
	}
}

func TestNewTokenizer_BadKey(t *testing.T) {
	if _, err := NewTokenizer("", time.Minute); err == nil {
		t.Error("empty key must be rejected")
	}
	if _, err := NewTokenizer("short", time.Minute); err == nil {
		t.Error("malformed key must be rejected")
	}
}
