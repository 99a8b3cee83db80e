package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pictura-dev/pictura/internal/blob"
	"github.com/pictura-dev/pictura/internal/config"
	"github.com/pictura-dev/pictura/internal/embedding"
	"github.com/pictura-dev/pictura/internal/gallery"
	"github.com/pictura-dev/pictura/internal/kv"
	"github.com/pictura-dev/pictura/internal/natsclient"
	"github.com/pictura-dev/pictura/internal/pipeline"
	"github.com/pictura-dev/pictura/internal/search"
	"github.com/pictura-dev/pictura/internal/server"
	"github.com/pictura-dev/pictura/internal/store"
)

const (
	blobBucket      = "PICTURA_FILES"
	cacheBucket     = "PICTURA_SEARCH_CACHE"
	ratelimitBucket = "PICTURA_RATELIMIT"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Pictura HTTP service and generation worker",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	images := store.NewImageStore(db, embedding.Dimensions)

	// NATS: task queue, KV, object storage
	nc, err := natsclient.NewClient(cfg.NatsURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer nc.Close()
	logger.Info("connected to NATS", "url", cfg.NatsURL)

	js := nc.JetStream()
	blobs, err := blob.NewStore(js, blobBucket)
	if err != nil {
		return err
	}
	cacheKV, err := kv.NewNATSStore(js, cacheBucket, cfg.CacheTTL)
	if err != nil {
		return err
	}
	rateKV, err := kv.NewNATSStore(js, ratelimitBucket, cfg.RateWindow)
	if err != nil {
		return err
	}

	// Signed download tokens
	tokenKey := cfg.DownloadTokenKey
	if tokenKey == "" {
		logger.Warn("no download token key configured, using ephemeral key")
		tokenKey, err = blob.GenerateKey()
		if err != nil {
			return err
		}
	}
	tokenizer, err := blob.NewTokenizer(tokenKey, cfg.DownloadTokenTTL)
	if err != nil {
		return fmt.Errorf("initializing download tokens: %w", err)
	}

	// Embedding provider
	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	logger.Info("embedding provider initialized", "backend", provider.Name())

	// Generation pipeline
	publisher := pipeline.NewPublisher(js, logger)
	generator := pipeline.NewGenerator(images, blobs, provider, logger)
	worker := pipeline.NewWorker(js, generator, images, publisher, pipeline.WorkerConfig{
		TaskTimeout:    cfg.ProviderTimeout + 5*time.Second,
		SweepInterval:  cfg.SweepInterval,
		SweepBatchSize: cfg.SweepBatchSize,
	}, logger)
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("starting generation worker: %w", err)
	}
	defer worker.Stop()

	// Search engine
	cache := search.NewCache(cacheKV, cfg.CacheTTL)
	limiter := search.NewLimiter(rateKV, cfg.RateLimit, cfg.RateWindow, logger)
	engine := search.NewEngine(images, provider, cache, limiter, cfg.SearchPageSize, logger)

	// Gallery service
	svc := gallery.NewService(images, blobs, publisher, cfg.MaxUploadBytes, logger)

	srv := server.New(cfg, server.Deps{
		DB:        db,
		Images:    images,
		Blobs:     blobs,
		Tokenizer: tokenizer,
		Gallery:   svc,
		Engine:    engine,
		Nats:      nc,
	}, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down gracefully...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("Pictura starting", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	logger.Info("Pictura stopped")
	return nil
}

// buildProvider selects the embedding backend.
func buildProvider(cfg *config.Config) (embedding.Provider, error) {
	switch cfg.EmbeddingBackend {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai embedding backend")
		}
		retry := embedding.RetryConfig{
			MaxRetries:   cfg.ProviderRetries,
			InitialDelay: 200 * time.Millisecond,
			Timeout:      cfg.ProviderTimeout,
		}
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.CaptionModel, retry), nil
	case "simple", "":
		return embedding.NewSimpleProvider(), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.EmbeddingBackend)
	}
}
