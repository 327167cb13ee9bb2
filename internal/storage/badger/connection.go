package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nyushi/internal/common"
)

// BadgerDB manages the raw Badger key-value database that backs the blob
// store. Unlike the catalog's typed SQLite tables, blob content is opaque
// bytes keyed by storage key, so this talks to badger directly rather than
// through badgerhold's typed-record layer.
type BadgerDB struct {
	db     *badger.DB
	logger arbor.ILogger
	config *common.BlobConfig
}

// NewBadgerDB opens (or resets, then opens) the blob store's Badger
// database directory.
func NewBadgerDB(logger arbor.ILogger, config *common.BlobConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("deleting existing blob store (reset_on_startup=true)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("failed to delete blob store directory")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob store parent directory: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("opening blob store")

	opts := badger.DefaultOptions(config.Path).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store at %s: %w", config.Path, err)
	}

	logger.Debug().Str("path", config.Path).Msg("blob store initialized")

	return &BadgerDB{db: db, logger: logger, config: config}, nil
}

// DB returns the underlying *badger.DB handle.
func (b *BadgerDB) DB() *badger.DB {
	return b.db
}

func (b *BadgerDB) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
