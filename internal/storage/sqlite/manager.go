package sqlite

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/interfaces"
)

// Catalog implements interfaces.Catalog over a single shared SQLite
// connection. The goqite queue tables live in the same *sql.DB (see
// connection.go), so Catalog writes and queue enqueue/receive calls observe
// each other inside the same busy-timeout/retry envelope.
type Catalog struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewCatalog opens the SQLite database, initializes the goqite queue schema
// and the catalog schema, and returns a ready-to-use Catalog.
func NewCatalog(logger arbor.ILogger, config *common.SQLiteConfig) (*Catalog, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Catalog{db: db, logger: logger}, nil
}

// DB returns the shared *sql.DB handle, used to construct the goqite-backed
// queue.Manager instances and the LLM audit logger.
func (c *Catalog) DB() interface{} {
	return c.db.DB()
}

// Close closes the underlying SQLite connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

var _ interfaces.Catalog = (*Catalog)(nil)
