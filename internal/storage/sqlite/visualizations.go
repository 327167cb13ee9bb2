package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/nyushi/internal/models"
)

// UpsertVisualization records where a task's raw or pruned crawl-tree HTML
// lives: storageKey is the Blob key the runtime wrote the markup under, and
// it is kept in the table's html column.
func (c *Catalog) UpsertVisualization(ctx context.Context, taskID string, kind models.VisualizationKind, storageKey string) error {
	now := time.Now().Unix()

	_, err := c.db.DB().ExecContext(ctx, `
		INSERT INTO visualizations (task_id, kind, html, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id, kind) DO UPDATE SET html = excluded.html, created_at = excluded.created_at
	`, taskID, kind, storageKey, now)
	if err != nil {
		return fmt.Errorf("failed to upsert visualization %s for task %s: %w", kind, taskID, err)
	}

	return nil
}

func (c *Catalog) GetVisualization(ctx context.Context, taskID string, kind models.VisualizationKind) (string, bool, error) {
	var html string

	err := c.db.DB().QueryRowContext(ctx, `
		SELECT html FROM visualizations WHERE task_id = ? AND kind = ?
	`, taskID, kind).Scan(&html)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get visualization %s for task %s: %w", kind, taskID, err)
	}

	return html, true, nil
}
