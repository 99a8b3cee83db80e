package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"
)

// SimpleProvider generates embeddings using a keyword hashing approach.
// Not semantically meaningful, but deterministic and sufficient for
// development and tests: shared keywords land in shared dimensions.
type SimpleProvider struct{}

// NewSimpleProvider creates a new SimpleProvider.
func NewSimpleProvider() *SimpleProvider {
	return &SimpleProvider{}
}

// Name returns the provider name.
func (p *SimpleProvider) Name() string {
	return "simple"
}

// EmbedText generates a pseudo-embedding by hashing words into vector
// dimensions. Words are lowercased, split on punctuation, hashed to a
// dimension index, accumulated, then the vector is L2-normalized.
func (p *SimpleProvider) EmbedText(_ context.Context, text string) (pgvector.Vector, error) {
	vec := make([]float32, Dimensions)

	words := tokenize(text)
	for _, word := range words {
		vec[hashIndex(word)] += 1.0
	}

	// Bigrams capture a little word ordering
	for i := 0; i < len(words)-1; i++ {
		vec[hashIndex(words[i]+" "+words[i+1])] += 0.5
	}

	normalize(vec)
	return pgvector.NewVector(vec), nil
}

// EmbedImage hashes fixed-size chunks of the raw bytes into dimensions.
// Identical bytes always produce the identical vector.
func (p *SimpleProvider) EmbedImage(_ context.Context, data []byte) (pgvector.Vector, error) {
	vec := make([]float32, Dimensions)

	const chunk = 64
	for i := 0; i < len(data); i += chunk {
		end := i + chunk
		if end > len(data) {
			end = len(data)
		}
		h := fnv.New64a()
		h.Write(data[i:end])
		vec[h.Sum64()%uint64(Dimensions)] += 1.0
	}

	normalize(vec)
	return pgvector.NewVector(vec), nil
}

func hashIndex(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64() % uint64(Dimensions)
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
}

// tokenize splits text into lowercase word tokens.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	for _, c := range ".,;:!?()[]{}\"'`~@#$%^&*+=|\\/<>" {
		text = strings.ReplaceAll(text, string(c), " ")
	}
	fields := strings.Fields(text)
	var result []string
	for _, f := range fields {
		if len(f) >= 2 {
			result = append(result, f)
		}
	}
	return result
}
