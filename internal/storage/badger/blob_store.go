package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nyushi/internal/interfaces"
)

// BlobStore implements interfaces.Blob over a raw Badger key-value
// database: downloaded document bytes and rendered crawl-tree HTML, keyed
// by storage key (task/file scoped strings assigned by the caller).
type BlobStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBlobStore wraps an already-open BadgerDB as a Blob.
func NewBlobStore(db *BadgerDB, logger arbor.ILogger) interfaces.Blob {
	return &BlobStore{db: db, logger: logger}
}

// Put writes data under key, overwriting any existing value. contentType is
// accepted for interface symmetry with remote object stores but is not
// persisted: Badger has no side-channel for object metadata, so callers
// that need it store it alongside in the catalog (files.extension).
func (b *BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	err := b.db.DB().Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to put blob %s: %w", key, err)
	}
	return key, nil
}

func (b *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte

	err := b.db.DB().View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("blob %s not found: %w", key, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob %s: %w", key, err)
	}

	return data, nil
}

// SignedURL has no meaning for a local embedded store: there is no HTTP
// surface serving blob content, so this always returns an error. Callers
// read bytes directly via Get.
func (b *BlobStore) SignedURL(ctx context.Context, key string, ttlSeconds int) (string, error) {
	return "", fmt.Errorf("signed urls are not supported by the local blob store")
}

func (b *BlobStore) Delete(ctx context.Context, key string) error {
	err := b.db.DB().Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

func (b *BlobStore) Close() error {
	return b.db.Close()
}

// RunGC runs one round of Badger's value-log garbage collection, reclaiming
// space freed by deleted or overwritten blobs. Safe to call periodically;
// returns nil when there is nothing to reclaim.
func (b *BlobStore) RunGC(ctx context.Context, discardRatio float64) error {
	start := time.Now()
	err := b.db.DB().RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil
	}
	if err != nil {
		return fmt.Errorf("blob store gc failed: %w", err)
	}
	b.logger.Debug().Dur("elapsed", time.Since(start)).Msg("blob store gc reclaimed space")
	return nil
}

var _ interfaces.Blob = (*BlobStore)(nil)
