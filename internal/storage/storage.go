package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jjudge-oj/accounts/config"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// maxObjectBytes bounds ReadAll; templates are small.
const maxObjectBytes = 1 << 20

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
	Close() error
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open connects to the configured object store. It returns nil, nil when
// no backend is configured.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	switch cfg.Backend {
	case config.StorageBackendNone:
		return nil, nil
	case config.StorageBackendMinio:
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		return NewStorage(client), nil
	case config.StorageBackendGCS:
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("connect gcs: %w", err)
		}
		return NewStorage(client), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
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

// PutBytes uploads data as an object.
func (s *Storage) PutBytes(ctx context.Context, key string, data []byte, contentType string) error {
	return s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

// Get opens a reader for an object in the configured bucket.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// ReadAll reads a whole object into memory.
func (s *Storage) ReadAll(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxObjectBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxObjectBytes {
		return nil, fmt.Errorf("object %q exceeds %d bytes", key, maxObjectBytes)
	}
	return data, nil
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// Close releases the backend client.
func (s *Storage) Close() error {
	return s.backend.Close()
}
