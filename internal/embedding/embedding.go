// Package embedding provides a swappable interface for text and image
// embedding generation.
package embedding

import (
	"context"
	"errors"

	pgvector "github.com/pgvector/pgvector-go"
)

// Dimensions is the embedding vector size, matching both the provider's
// output and the vector(1536) column in the store. Changing it requires
// a full re-embedding migration, never a silent truncate or pad.
const Dimensions = 1536

// ErrProvider indicates a permanent provider failure (bad request, auth,
// malformed response). Not retried.
var ErrProvider = errors.New("embedding provider error")

// ErrProviderTimeout indicates the overall call budget was exhausted,
// retries included.
var ErrProviderTimeout = errors.New("embedding provider timeout")

// Provider generates embeddings.
type Provider interface {
	// EmbedText generates an embedding vector for the given text.
	EmbedText(ctx context.Context, text string) (pgvector.Vector, error)

	// EmbedImage generates an embedding vector for raw image bytes.
	EmbedImage(ctx context.Context, data []byte) (pgvector.Vector, error)

	// Name returns the provider name for logging.
	Name() string
}

// Captioner is implemented by providers that can describe an image.
// The generation worker uses it to fill in blank name/description
// fields before embedding.
type Captioner interface {
	Caption(ctx context.Context, data []byte) (name, description string, err error)
}
