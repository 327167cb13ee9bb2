package sqlite

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/models"
)

func urlHash(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// UpsertTask inserts a new task for sourceID, or resets an existing one to
// pending and bumps retry_count. It looks the row up by source_id first,
// then runs either an INSERT or an UPDATE.
func (c *Catalog) UpsertTask(ctx context.Context, sourceID int64, url, school string, kind models.SeedKind) (string, error) {
	now := time.Now().Unix()
	hash := urlHash(url)

	var existing string
	err := c.db.DB().QueryRowContext(ctx, `SELECT task_id FROM tasks WHERE source_id = ?`, sourceID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to look up task for source %d: %w", sourceID, err)
	}

	if err == sql.ErrNoRows {
		taskID := common.NewTaskID()
		_, err := c.db.DB().ExecContext(ctx, `
			INSERT INTO tasks (task_id, source_id, source_url, url_hash, school_name, kind, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, taskID, sourceID, url, hash, school, kind, models.TaskStatusPending, now, now)
		if err != nil {
			return "", fmt.Errorf("failed to insert task: %w", err)
		}
		return taskID, nil
	}

	_, err = c.db.DB().ExecContext(ctx, `
		UPDATE tasks
		SET source_url = ?, url_hash = ?, school_name = ?, kind = ?, status = ?, retry_count = retry_count + 1,
			error = NULL, completed_at = NULL, updated_at = ?
		WHERE task_id = ?
	`, url, hash, school, kind, models.TaskStatusPending, now, existing)
	if err != nil {
		return "", fmt.Errorf("failed to reset task %s: %w", existing, err)
	}

	return existing, nil
}

func (c *Catalog) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	row := c.db.DB().QueryRowContext(ctx, `
		SELECT task_id, source_id, source_url, url_hash, school_name, kind, status, node_count, pruned_count,
			file_count, retry_count, error, started_at, completed_at, created_at, updated_at
		FROM tasks WHERE task_id = ?
	`, taskID)

	return scanTask(row)
}

// GetTaskBySourceID looks up a task by its upstream source_id, used by
// SyncDetector to cascade-delete the prior attempt before a changed/failed
// retry. Returns (nil, nil) when no task exists for sourceID.
func (c *Catalog) GetTaskBySourceID(ctx context.Context, sourceID int64) (*models.Task, error) {
	row := c.db.DB().QueryRowContext(ctx, `
		SELECT task_id, source_id, source_url, url_hash, school_name, kind, status, node_count, pruned_count,
			file_count, retry_count, error, started_at, completed_at, created_at, updated_at
		FROM tasks WHERE source_id = ?
	`, sourceID)

	return scanTask(row)
}

func scanTask(row *sql.Row) (*models.Task, error) {
	var t models.Task
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&t.TaskID, &t.SourceID, &t.SourceURL, &t.URLHash, &t.SchoolName, &t.Kind, &t.Status,
		&t.NodeCount, &t.PrunedCount, &t.FileCount, &t.RetryCount, &errMsg,
		&startedAt, &completedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	if errMsg.Valid {
		t.Error = errMsg.String
	}
	if startedAt.Valid {
		ts := time.Unix(startedAt.Int64, 0)
		t.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := time.Unix(completedAt.Int64, 0)
		t.CompletedAt = &ts
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)

	return &t, nil
}

// UpdateTaskStatus applies the status transition and optional patch fields,
// stamping started_at/completed_at on entry to crawling/terminal states.
func (c *Catalog) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, patch models.TaskStatusPatch) error {
	now := time.Now().Unix()

	setClauses := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{status, now}

	if status == models.TaskStatusCrawling {
		setClauses = append(setClauses, "started_at = COALESCE(started_at, ?)")
		args = append(args, now)
	}
	if status == models.TaskStatusCompleted || status == models.TaskStatusFailed {
		setClauses = append(setClauses, "completed_at = ?")
		args = append(args, now)
	}
	if patch.NodeCount != nil {
		setClauses = append(setClauses, "node_count = ?")
		args = append(args, *patch.NodeCount)
	}
	if patch.PrunedCount != nil {
		setClauses = append(setClauses, "pruned_count = ?")
		args = append(args, *patch.PrunedCount)
	}
	if patch.FileCount != nil {
		setClauses = append(setClauses, "file_count = ?")
		args = append(args, *patch.FileCount)
	}
	if patch.Error != nil {
		setClauses = append(setClauses, "error = ?")
		args = append(args, *patch.Error)
	}

	query := "UPDATE tasks SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE task_id = ?"
	args = append(args, taskID)

	if _, err := c.db.DB().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update task %s status: %w", taskID, err)
	}

	return nil
}

func (c *Catalog) GetAllTaskSourceIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := c.db.DB().QueryContext(ctx, `SELECT source_id FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query task source ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan source id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (c *Catalog) GetChangedSourceIDs(ctx context.Context, upstreamHashes map[int64]string) ([]int64, error) {
	rows, err := c.db.DB().QueryContext(ctx, `SELECT source_id, url_hash FROM tasks ORDER BY source_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query task hashes: %w", err)
	}
	defer rows.Close()

	var changed []int64
	for rows.Next() {
		var id int64
		var hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan task hash: %w", err)
		}
		if upstreamHash, ok := upstreamHashes[id]; ok && upstreamHash != hash {
			changed = append(changed, id)
		}
	}
	return changed, rows.Err()
}

func (c *Catalog) ListTasksByStatus(ctx context.Context, status models.TaskStatus, limit int) ([]*models.Task, error) {
	rows, err := c.db.DB().QueryContext(ctx, `
		SELECT task_id, source_id, source_url, url_hash, school_name, kind, status, node_count, pruned_count,
			file_count, retry_count, error, started_at, completed_at, created_at, updated_at
		FROM tasks WHERE status = ? ORDER BY source_id ASC LIMIT ?
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by status %s: %w", status, err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTaskRows(rows *sql.Rows) (*models.Task, error) {
	var t models.Task
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := rows.Scan(&t.TaskID, &t.SourceID, &t.SourceURL, &t.URLHash, &t.SchoolName, &t.Kind, &t.Status,
		&t.NodeCount, &t.PrunedCount, &t.FileCount, &t.RetryCount, &errMsg,
		&startedAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan task row: %w", err)
	}

	if errMsg.Valid {
		t.Error = errMsg.String
	}
	if startedAt.Valid {
		ts := time.Unix(startedAt.Int64, 0)
		t.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := time.Unix(completedAt.Int64, 0)
		t.CompletedAt = &ts
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)

	return &t, nil
}

// DeleteTaskCascade removes a task and everything CASCADE-linked to it:
// nodes, files, and visualizations.
func (c *Catalog) DeleteTaskCascade(ctx context.Context, taskID string) error {
	if _, err := c.db.DB().ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}
