package main

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pictura-dev/pictura/internal/blob"
	"github.com/pictura-dev/pictura/internal/config"
	"github.com/pictura-dev/pictura/internal/embedding"
	"github.com/pictura-dev/pictura/internal/natsclient"
	"github.com/pictura-dev/pictura/internal/pipeline"
	"github.com/pictura-dev/pictura/internal/store"
)

var reembedBatch int

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Backfill embeddings for records that do not have one",
	Long: `Reembed walks the gallery for records with an attached file but no
stored embedding and generates one for each, synchronously. Use it
after a provider outage, or after an embedding dimension migration
has cleared the vector column.`,
	RunE: runReembed,
}

func init() {
	reembedCmd.Flags().IntVar(&reembedBatch, "batch", 200, "maximum records per run")
	rootCmd.AddCommand(reembedCmd)
}

func runReembed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	ctx := context.Background()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	images := store.NewImageStore(db, embedding.Dimensions)

	nc, err := natsclient.NewClient(cfg.NatsURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer nc.Close()

	blobs, err := blob.NewStore(nc.JetStream(), blobBucket)
	if err != nil {
		return err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	generator := pipeline.NewGenerator(images, blobs, provider, logger)

	ids, err := images.ImagesWithoutEmbeddings(ctx, reembedBatch)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("all records already have embeddings")
		return nil
	}

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetDescription("embedding"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	failed := 0
	for _, id := range ids {
		runCtx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout+5*time.Second)
		if err := generator.Generate(runCtx, id); err != nil {
			logger.Warn("generation failed", "id", id, "error", err)
			failed++
		}
		cancel()
		_ = bar.Add(1)
	}

	fmt.Printf("embedded %d of %d records (%d failed)\n", len(ids)-failed, len(ids), failed)
	return nil
}
