package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ErrDimensionMismatch is returned when a vector's length does not match
// the store's configured embedding dimension. A mismatched vector is
// never written.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Neighbor is one nearest-neighbor result: the matched image and its
// cosine distance from the query vector.
type Neighbor struct {
	Image    *Image  `json:"image"`
	Distance float64 `json:"distance"`
}

// UpsertEmbedding atomically sets the embedding column for one row,
// bypassing the rest of the record lifecycle. Regeneration overwrites;
// last write wins. Returns ErrDimensionMismatch without touching the
// database if the vector is the wrong length, and ErrNotFound if the
// row no longer exists.
func (s *ImageStore) UpsertEmbedding(ctx context.Context, id uuid.UUID, vec pgvector.Vector) error {
	if len(vec.Slice()) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec.Slice()), s.dim)
	}

	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE images SET embedding = $2 WHERE id = $1
	`, id, vec)
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NearestNeighbors returns up to limit images ordered by ascending cosine
// distance to vec, skipping offset rows. Rows without an embedding never
// appear. Ties break on id ascending so pagination stays deterministic.
// An empty query vector yields an empty result, not an error.
func (s *ImageStore) NearestNeighbors(ctx context.Context, vec pgvector.Vector, limit, offset int, excludeID *uuid.UUID) ([]Neighbor, error) {
	if len(vec.Slice()) == 0 {
		return nil, nil
	}

	exclude := uuid.Nil
	if excludeID != nil {
		exclude = *excludeID
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+imageColumns+`, embedding <=> $1 AS distance
		FROM images
		WHERE embedding IS NOT NULL AND id != $2
		ORDER BY distance, id
		LIMIT $3 OFFSET $4
	`, vec, exclude, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	defer rows.Close()

	var result []Neighbor
	for rows.Next() {
		img := &Image{}
		var n Neighbor
		if err := rows.Scan(&img.ID, &img.Name, &img.Description, &img.BlobKey,
			&img.ContentType, &img.ByteSize, &img.Embedding, &img.CreatedAt, &img.UpdatedAt,
			&n.Distance); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		n.Image = img
		result = append(result, n)
	}
	return result, rows.Err()
}

// ImagesWithoutEmbeddings returns ids of images that have a file attached
// but no embedding yet, oldest first. Used by the backfill sweep.
func (s *ImageStore) ImagesWithoutEmbeddings(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id FROM images
		WHERE embedding IS NULL AND blob_key != ''
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("images without embeddings: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountEmbedded returns the number of images with a stored embedding.
func (s *ImageStore) CountEmbedded(ctx context.Context) (int, error) {
	var n int
	if err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM images WHERE embedding IS NOT NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embedded: %w", err)
	}
	return n, nil
}
