package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/nyushi/internal/models"
)

// AppendSyncLog records one SyncDetector.Detect pass. The table is
// append-only; there is no update or delete path.
func (c *Catalog) AppendSyncLog(ctx context.Context, log *models.SyncLog) error {
	ts := log.Timestamp
	if ts.IsZero() {
		ts = time.Unix(0, 0)
	}

	result, err := c.db.DB().ExecContext(ctx, `
		INSERT INTO sync_log (timestamp, source_count, new_count, changed_count, kind)
		VALUES (?, ?, ?, ?, ?)
	`, ts.Unix(), log.SourceCount, log.NewCount, log.ChangedCount, log.Kind)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		log.ID = id
	}

	return nil
}
