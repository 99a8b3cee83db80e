// Package config provides environment-based configuration for Pictura.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Pictura service. Values resolve
// in three layers: built-in defaults, then an optional YAML config file,
// then environment variables on top.
type Config struct {
	// Server
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Database (PostgreSQL with pgvector)
	DatabaseURL string `yaml:"database_url"`

	// NATS (task queue, KV cache, object storage)
	NatsURL string `yaml:"nats_url"`

	// Embeddings
	EmbeddingBackend string `yaml:"embedding_backend"` // "simple" or "openai"
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	OpenAIModel      string `yaml:"openai_model"`
	CaptionModel     string `yaml:"caption_model"`

	// Provider call budget
	ProviderTimeout time.Duration `yaml:"provider_timeout"` // hard cap, retries included
	ProviderRetries int           `yaml:"provider_retries"`

	// Search
	SearchPageSize int           `yaml:"search_page_size"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	RateLimit      int           `yaml:"rate_limit"` // searches per window per client
	RateWindow     time.Duration `yaml:"rate_window"`

	// Uploads
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Signed download tokens
	DownloadTokenKey string        `yaml:"download_token_key"` // fernet key, URL-safe base64
	DownloadTokenTTL time.Duration `yaml:"download_token_ttl"`

	// Background worker
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepBatchSize int           `yaml:"sweep_batch_size"`
}

// Defaults returns a Config populated with built-in defaults.
func Defaults() *Config {
	return &Config{
		Port:             8600,
		LogLevel:         "info",
		NatsURL:          "nats://localhost:4222",
		EmbeddingBackend: "simple",
		OpenAIModel:      "text-embedding-3-small",
		CaptionModel:     "gpt-4o-mini",
		ProviderTimeout:  10 * time.Second,
		ProviderRetries:  2,
		SearchPageSize:   10,
		CacheTTL:         5 * time.Minute,
		RateLimit:        10,
		RateWindow:       time.Minute,
		MaxUploadBytes:   10 << 20,
		DownloadTokenTTL: 15 * time.Minute,
		SweepInterval:    5 * time.Minute,
		SweepBatchSize:   50,
	}
}

// Load reads configuration: defaults, then the YAML file named by
// PICTURA_CONFIG (if set), then environment variables.
func Load() (*Config, error) {
	c := Defaults()

	if path := os.Getenv("PICTURA_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	c.Port = envInt("PICTURA_PORT", c.Port)
	c.LogLevel = envStr("PICTURA_LOG_LEVEL", c.LogLevel)
	c.DatabaseURL = envStr("DATABASE_URL", c.DatabaseURL)
	c.NatsURL = envStr("NATS_URL", c.NatsURL)
	c.EmbeddingBackend = envStr("EMBEDDING_BACKEND", c.EmbeddingBackend)
	c.OpenAIAPIKey = envStr("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = envStr("OPENAI_EMBEDDING_MODEL", c.OpenAIModel)
	c.CaptionModel = envStr("OPENAI_CAPTION_MODEL", c.CaptionModel)
	c.ProviderTimeout = envDuration("PROVIDER_TIMEOUT", c.ProviderTimeout)
	c.ProviderRetries = envInt("PROVIDER_RETRIES", c.ProviderRetries)
	c.SearchPageSize = envInt("SEARCH_PAGE_SIZE", c.SearchPageSize)
	c.CacheTTL = envDuration("SEARCH_CACHE_TTL", c.CacheTTL)
	c.RateLimit = envInt("SEARCH_RATE_LIMIT", c.RateLimit)
	c.RateWindow = envDuration("SEARCH_RATE_WINDOW", c.RateWindow)
	c.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.DownloadTokenKey = envStr("DOWNLOAD_TOKEN_KEY", c.DownloadTokenKey)
	c.DownloadTokenTTL = envDuration("DOWNLOAD_TOKEN_TTL", c.DownloadTokenTTL)
	c.SweepInterval = envDuration("SWEEP_INTERVAL", c.SweepInterval)
	c.SweepBatchSize = envInt("SWEEP_BATCH_SIZE", c.SweepBatchSize)

	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return c, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
