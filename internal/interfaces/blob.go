package interfaces

import "context"

// Blob is the content-addressed object store for downloaded files and
// generated crawl-tree visualizations. Put is idempotent by key.
type Blob interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (storageKey string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
	SignedURL(ctx context.Context, key string, ttlSeconds int) (string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
