package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tenantcart/apiserver/config"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open builds the catalog storage selected by cfg.Catalog.Backend. It returns
// nil when no backend is configured.
func Open(ctx context.Context, cfg config.Config) (*Storage, error) {
	switch cfg.Catalog.Backend {
	case config.CatalogBackendNone, "":
		return nil, nil
	case config.CatalogBackendMinio:
		backend, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		return NewStorage(backend), nil
	case config.CatalogBackendGCS:
		backend, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		return NewStorage(backend), nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Get opens a reader for an object in the configured bucket.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
