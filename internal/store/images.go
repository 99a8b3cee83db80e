package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// ErrNotFound is returned when a requested image row does not exist.
var ErrNotFound = errors.New("image not found")

// Image is a gallery record. Embedding is nil until the generation
// pipeline has computed one; it is written only through UpsertEmbedding,
// never by the ordinary update paths.
type Image struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	BlobKey     string           `json:"-"`
	ContentType string           `json:"content_type"`
	ByteSize    int64            `json:"byte_size"`
	Embedding   *pgvector.Vector `json:"-"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// HasFile reports whether the record has an attached blob.
func (img *Image) HasFile() bool { return img.BlobKey != "" }

// ImageStore provides access to the images table. dim is the configured
// embedding dimension; vectors of any other length are rejected before
// they reach the database.
type ImageStore struct {
	db  *DB
	dim int
}

// NewImageStore creates an ImageStore enforcing the given embedding dimension.
func NewImageStore(db *DB, dim int) *ImageStore {
	return &ImageStore{db: db, dim: dim}
}

// Expected schema:
//
//	CREATE EXTENSION IF NOT EXISTS vector;
//	CREATE TABLE images (
//	    id           uuid PRIMARY KEY,
//	    name         text NOT NULL DEFAULT '',
//	    description  text NOT NULL DEFAULT '',
//	    blob_key     text NOT NULL DEFAULT '',
//	    content_type text NOT NULL DEFAULT '',
//	    byte_size    bigint NOT NULL DEFAULT 0,
//	    embedding    vector(1536),
//	    created_at   timestamptz NOT NULL DEFAULT now(),
//	    updated_at   timestamptz NOT NULL DEFAULT now()
//	);
//	CREATE INDEX ON images USING ivfflat (embedding vector_cosine_ops);
const imageColumns = `id, name, description, blob_key, content_type, byte_size, embedding, created_at, updated_at`

// Create inserts a new image row. The embedding starts null.
func (s *ImageStore) Create(ctx context.Context, img *Image) error {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO images (id, name, description, blob_key, content_type, byte_size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, img.ID, img.Name, img.Description, img.BlobKey, img.ContentType, img.ByteSize).
		Scan(&img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// Get fetches an image by id. Returns ErrNotFound if the row is gone.
func (s *ImageStore) Get(ctx context.Context, id uuid.UUID) (*Image, error) {
	img := &Image{}
	err := s.db.Pool.QueryRow(ctx, `
		SELECT `+imageColumns+` FROM images WHERE id = $1
	`, id).Scan(&img.ID, &img.Name, &img.Description, &img.BlobKey,
		&img.ContentType, &img.ByteSize, &img.Embedding, &img.CreatedAt, &img.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", id, err)
	}
	return img, nil
}

// List returns a page of images, newest first.
func (s *ImageStore) List(ctx context.Context, limit, offset int) ([]*Image, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+imageColumns+` FROM images
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []*Image
	for rows.Next() {
		img := &Image{}
		if err := rows.Scan(&img.ID, &img.Name, &img.Description, &img.BlobKey,
			&img.ContentType, &img.ByteSize, &img.Embedding, &img.CreatedAt, &img.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// UpdateText updates name and description only. The embedding column is
// never touched here; concurrent generation cannot race with text edits.
func (s *ImageStore) UpdateText(ctx context.Context, id uuid.UUID, name, description string) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE images SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
	`, id, name, description)
	if err != nil {
		return fmt.Errorf("update image text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an image row. The embedding goes with the row.
func (s *ImageStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the total number of images.
func (s *ImageStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return n, nil
}
