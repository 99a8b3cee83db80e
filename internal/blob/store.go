// Package blob stores uploaded image files in a NATS JetStream object
// store bucket, keyed by opaque blob keys owned by the image records.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
)

// ErrNotFound is returned when no blob exists under the requested key.
var ErrNotFound = errors.New("blob not found")

const contentTypeHeader = "Content-Type"

// Store wraps a JetStream object store bucket.
type Store struct {
	bucket nats.ObjectStore
}

// NewStore opens (or creates) the named object store bucket.
func NewStore(js nats.JetStreamContext, bucket string) (*Store, error) {
	obs, err := js.ObjectStore(bucket)
	if errors.Is(err, nats.ErrStreamNotFound) || errors.Is(err, nats.ErrBucketNotFound) {
		obs, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "pictura image files",
		})
	}
	if err != nil {
		return nil, fmt.Errorf("opening object store %s: %w", bucket, err)
	}
	return &Store{bucket: obs}, nil
}

// Put stores the reader's contents under key with its content type.
func (s *Store) Put(_ context.Context, key string, r io.Reader, contentType string) error {
	meta := &nats.ObjectMeta{
		Name:    key,
		Headers: nats.Header{},
	}
	meta.Headers.Set(contentTypeHeader, contentType)

	if _, err := s.bucket.Put(meta, r); err != nil {
		return fmt.Errorf("storing blob %s: %w", key, err)
	}
	return nil
}

// Get returns the blob's bytes and content type.
func (s *Store) Get(_ context.Context, key string) ([]byte, string, error) {
	res, err := s.bucket.Get(key)
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("fetching blob %s: %w", key, err)
	}
	defer res.Close()

	data, err := io.ReadAll(res)
	if err != nil {
		return nil, "", fmt.Errorf("reading blob %s: %w", key, err)
	}

	contentType := ""
	if info, err := res.Info(); err == nil && info.Headers != nil {
		contentType = info.Headers.Get(contentTypeHeader)
	}
	return data, contentType, nil
}

// Delete removes a blob. A missing blob is not an error; the record
// delete path must stay idempotent.
func (s *Store) Delete(_ context.Context, key string) error {
	err := s.bucket.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("deleting blob %s: %w", key, err)
	}
	return nil
}
