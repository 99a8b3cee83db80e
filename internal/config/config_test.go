package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PICTURA_CONFIG", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/pictura_test")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != 8600 {
		t.Errorf("port = %d, want 8600", c.Port)
	}
	if c.EmbeddingBackend != "simple" {
		t.Errorf("backend = %q, want simple", c.EmbeddingBackend)
	}
	if c.RateLimit != 10 || c.RateWindow != time.Minute {
		t.Errorf("rate limit defaults wrong: %d / %v", c.RateLimit, c.RateWindow)
	}
	if c.CacheTTL != 5*time.Minute {
		t.Errorf("cache ttl = %v, want 5m", c.CacheTTL)
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is unset")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pictura_test")
	t.Setenv("PICTURA_PORT", "9000")
	t.Setenv("EMBEDDING_BACKEND", "openai")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("SEARCH_RATE_LIMIT", "25")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != 9000 {
		t.Errorf("port = %d, want 9000", c.Port)
	}
	if c.EmbeddingBackend != "openai" {
		t.Errorf("backend = %q, want openai", c.EmbeddingBackend)
	}
	if c.ProviderTimeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", c.ProviderTimeout)
	}
	if c.RateLimit != 25 {
		t.Errorf("rate limit = %d, want 25", c.RateLimit)
	}
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pictura.yaml")
	body := "port: 7000\nlog_level: debug\nsearch_page_size: 20\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/pictura_test")
	t.Setenv("PICTURA_CONFIG", path)
	t.Setenv("PICTURA_PORT", "7100")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// env beats file, file beats defaults
	if c.Port != 7100 {
		t.Errorf("port = %d, want env value 7100", c.Port)
	}
	if c.LogLevel != "debug" {
		t.Errorf("log level = %q, want file value debug", c.LogLevel)
	}
	if c.SearchPageSize != 20 {
		t.Errorf("page size = %d, want file value 20", c.SearchPageSize)
	}
}

func TestLoad_BadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [not an int"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/pictura_test")
	t.Setenv("PICTURA_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestEnvHelpers_IgnoreMalformed(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	t.Setenv("SOME_DUR", "not-a-duration")

	if got := envInt("SOME_INT", 42); got != 42 {
		t.Errorf("envInt = %d, want fallback 42", got)
	}
	if got := envDuration("SOME_DUR", time.Second); got != time.Second {
		t.Errorf("envDuration = %v, want fallback 1s", got)
	}
}
