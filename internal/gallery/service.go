// Package gallery orchestrates the image record lifecycle: upload and
// persist, schedule embedding generation, update, and delete.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pictura-dev/pictura/internal/store"
)

// ErrMissingFile is returned when a create request carries no file.
var ErrMissingFile = errors.New("an image file is required")

// ErrFileTooLarge is returned when an upload exceeds the size limit.
var ErrFileTooLarge = errors.New("the file size is too large")

// Records is the slice of the image store the service needs.
type Records interface {
	Create(ctx context.Context, img *store.Image) error
	Get(ctx context.Context, id uuid.UUID) (*store.Image, error)
	List(ctx context.Context, limit, offset int) ([]*store.Image, error)
	UpdateText(ctx context.Context, id uuid.UUID, name, description string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Blobs stores attached files.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Scheduler enqueues embedding generation tasks.
type Scheduler interface {
	EnqueueGenerate(ctx context.Context, id uuid.UUID) error
}

// Service owns the record lifecycle.
type Service struct {
	records  Records
	blobs    Blobs
	tasks    Scheduler
	maxBytes int64
	logger   *slog.Logger
}

// NewService creates a gallery Service. maxBytes caps upload size.
func NewService(records Records, blobs Blobs, tasks Scheduler, maxBytes int64, logger *slog.Logger) *Service {
	return &Service{
		records:  records,
		blobs:    blobs,
		tasks:    tasks,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// CreateInput carries a new record's fields and its file.
type CreateInput struct {
	Name        string
	Description string
	File        io.Reader
	ContentType string
	Size        int64
}

// Create stores the file, inserts the record, and then — only after the
// record is durably committed — schedules embedding generation.
// skipGeneration suppresses the scheduling, for callers (tests, bulk
// imports) that manage generation themselves.
func (s *Service) Create(ctx context.Context, in CreateInput, skipGeneration bool) (*store.Image, error) {
	if in.File == nil {
		return nil, ErrMissingFile
	}
	if s.maxBytes > 0 && in.Size > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	key := uuid.NewString()
	reader := in.File
	if s.maxBytes > 0 {
		// Belt and braces for callers that report Size wrong.
		reader = io.LimitReader(in.File, s.maxBytes+1)
	}
	if err := s.blobs.Put(ctx, key, reader, in.ContentType); err != nil {
		return nil, fmt.Errorf("storing file: %w", err)
	}

	img := &store.Image{
		Name:        in.Name,
		Description: in.Description,
		BlobKey:     key,
		ContentType: in.ContentType,
		ByteSize:    in.Size,
	}
	if err := s.records.Create(ctx, img); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn("orphaned blob after failed insert", "key", key, "error", derr)
		}
		return nil, err
	}

	if !skipGeneration {
		if err := s.tasks.EnqueueGenerate(ctx, img.ID); err != nil {
			// The sweep will pick the record up; creation still succeeded.
			s.logger.Warn("failed to enqueue generation", "id", img.ID, "error", err)
		}
	}
	return img, nil
}

// Get fetches one record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*store.Image, error) {
	return s.records.Get(ctx, id)
}

// List returns a page of records, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*store.Image, error) {
	return s.records.List(ctx, limit, offset)
}

// UpdateText changes a record's name and description. The embedding is
// untouched; only the generation pipeline writes that column.
func (s *Service) UpdateText(ctx context.Context, id uuid.UUID, name, description string) error {
	return s.records.UpdateText(ctx, id, name, description)
}

// Delete removes the record and its blob. The embedding goes with the
// row; an in-flight generation task will find the record missing and
// discard its result.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	img, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}
	if img.HasFile() {
		if err := s.blobs.Delete(ctx, img.BlobKey); err != nil {
			s.logger.Warn("failed to delete blob", "key", img.BlobKey, "error", err)
		}
	}
	return nil
}
