// Package pipeline turns "a record has a file and needs an embedding"
// into a persisted vector, decoupled from the request path by a NATS
// work queue. Failures here are terminal to the task and observable
// only in logs; they never surface to a user.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/pictura-dev/pictura/internal/blob"
	"github.com/pictura-dev/pictura/internal/embedding"
	"github.com/pictura-dev/pictura/internal/store"
)

// Records is the slice of the image store the pipeline needs.
type Records interface {
	Get(ctx context.Context, id uuid.UUID) (*store.Image, error)
	UpdateText(ctx context.Context, id uuid.UUID, name, description string) error
	UpsertEmbedding(ctx context.Context, id uuid.UUID, vec pgvector.Vector) error
	ImagesWithoutEmbeddings(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// Blobs fetches attached files.
type Blobs interface {
	Get(ctx context.Context, key string) (data []byte, contentType string, err error)
}

// Generator computes and persists one record's embedding.
type Generator struct {
	records  Records
	blobs    Blobs
	provider embedding.Provider
	logger   *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(records Records, blobs Blobs, provider embedding.Provider, logger *slog.Logger) *Generator {
	return &Generator{
		records:  records,
		blobs:    blobs,
		provider: provider,
		logger:   logger,
	}
}

// Generate loads the record, derives the embedding input, calls the
// provider, and upserts the vector. Safe to run repeatedly for the same
// id; the last write wins. A record deleted before or during the run is
// a quiet no-op, not an error.
func (g *Generator) Generate(ctx context.Context, id uuid.UUID) error {
	img, err := g.records.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		g.logger.Debug("record gone before generation, skipping", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading record: %w", err)
	}
	if !img.HasFile() {
		g.logger.Debug("record has no file, skipping generation", "id", id)
		return nil
	}

	var fileData []byte
	loadFile := func() ([]byte, error) {
		if fileData != nil {
			return fileData, nil
		}
		data, _, err := g.blobs.Get(ctx, img.BlobKey)
		if err != nil {
			return nil, err
		}
		fileData = data
		return fileData, nil
	}

	if img.Name == "" || img.Description == "" {
		if err := g.fillMetadata(ctx, img, loadFile); err != nil {
			// Metadata is best-effort; embedding proceeds without it.
			g.logger.Warn("metadata generation failed", "id", id, "error", err)
		}
	}

	var vec pgvector.Vector
	if img.Name != "" && img.Description != "" {
		// Text embedding keeps image and text search in one vector space.
		vec, err = g.provider.EmbedText(ctx, embedText(img.Name, img.Description))
	} else {
		data, ferr := loadFile()
		if ferr != nil {
			if errors.Is(ferr, blob.ErrNotFound) {
				g.logger.Warn("blob missing for record, skipping generation", "id", id)
				return nil
			}
			return fmt.Errorf("loading file: %w", ferr)
		}
		vec, err = g.provider.EmbedImage(ctx, data)
	}
	if err != nil {
		return fmt.Errorf("embedding record %s: %w", id, err)
	}

	err = g.records.UpsertEmbedding(ctx, id, vec)
	if errors.Is(err, store.ErrNotFound) {
		g.logger.Debug("record deleted mid-generation, discarding result", "id", id)
		return nil
	}
	return err
}

// fillMetadata asks a captioning provider for name/description when the
// record's own fields are blank, falling back to a generated name.
// Existing non-blank fields are never overwritten.
func (g *Generator) fillMetadata(ctx context.Context, img *store.Image, loadFile func() ([]byte, error)) error {
	name, description := img.Name, img.Description

	if captioner, ok := g.provider.(embedding.Captioner); ok {
		data, err := loadFile()
		if err != nil {
			return err
		}
		capName, capDesc, err := captioner.Caption(ctx, data)
		if err != nil {
			return err
		}
		if name == "" {
			name = capName
		}
		if description == "" {
			description = capDesc
		}
	} else if name == "" {
		name = "Image " + img.CreatedAt.Format("20060102-150405")
	}

	if name == img.Name && description == img.Description {
		return nil
	}

	err := g.records.UpdateText(ctx, img.ID, name, description)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	img.Name, img.Description = name, description
	return nil
}

// embedText is the textual basis used when both fields are present.
func embedText(name, description string) string {
	return strings.TrimSpace(name + " " + description)
}
