package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/models"
)

// BatchInsertNodes upserts a crawl pass's flattened node list, keyed by
// (task_id, node_index), in a single transaction. A repeat for an existing
// index overwrites its crawl fields but never touches is_pruned.
func (c *Catalog) BatchInsertNodes(ctx context.Context, taskID string, nodes []*models.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	tx, err := c.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin node insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (node_id, task_id, node_index, parent_index, depth, title, breadcrumb,
			url, parent_title, is_pruned, is_file, file_extension)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id, node_index) DO UPDATE SET
			title = excluded.title, breadcrumb = excluded.breadcrumb, url = excluded.url,
			parent_title = excluded.parent_title, is_file = excluded.is_file,
			file_extension = excluded.file_extension
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		if n.NodeID == "" {
			n.NodeID = common.NewNodeID()
		}
		if _, err := stmt.ExecContext(ctx, n.NodeID, taskID, n.NodeIndex, n.ParentIndex, n.Depth,
			n.Title, n.Breadcrumb, n.URL, n.ParentTitle, boolToInt(n.IsPruned), boolToInt(n.IsFile),
			n.FileExtension); err != nil {
			return fmt.Errorf("failed to insert node %d for task %s: %w", n.NodeIndex, taskID, err)
		}
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// MarkNodesPruned resets every node of the task to is_pruned=false, then sets
// it true for the listed indices, so a re-run of a prune pass for the same
// task (e.g. on crash-resumption) never leaves a stale true from a prior,
// different index set.
func (c *Catalog) MarkNodesPruned(ctx context.Context, taskID string, indices []int) error {
	tx, err := c.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin prune transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE nodes SET is_pruned = 0 WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to reset pruned flags for task %s: %w", taskID, err)
	}

	if len(indices) > 0 {
		stmt, err := tx.PrepareContext(ctx, `UPDATE nodes SET is_pruned = 1 WHERE task_id = ? AND node_index = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare prune update: %w", err)
		}
		defer stmt.Close()

		for _, idx := range indices {
			if _, err := stmt.ExecContext(ctx, taskID, idx); err != nil {
				return fmt.Errorf("failed to mark node %d pruned for task %s: %w", idx, taskID, err)
			}
		}
	}

	return tx.Commit()
}

func (c *Catalog) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	row := c.db.DB().QueryRowContext(ctx, `
		SELECT node_id, task_id, node_index, parent_index, depth, title, breadcrumb, url,
			parent_title, is_pruned, is_file, file_extension
		FROM nodes WHERE node_id = ?
	`, nodeID)

	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

func scanNode(row *sql.Row) (*models.Node, error) {
	var n models.Node
	var isPruned, isFile int

	err := row.Scan(&n.NodeID, &n.TaskID, &n.NodeIndex, &n.ParentIndex, &n.Depth, &n.Title,
		&n.Breadcrumb, &n.URL, &n.ParentTitle, &isPruned, &isFile, &n.FileExtension)
	if err != nil {
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	n.IsPruned = isPruned != 0
	n.IsFile = isFile != 0

	return &n, nil
}

// GetFileNodes returns nodes flagged is_file for a task. When prunedOnly is
// true, pruned nodes are excluded - the downloader only ever sees surviving
// nodes from the pruning pass.
func (c *Catalog) GetFileNodes(ctx context.Context, taskID string, prunedOnly bool) ([]*models.Node, error) {
	query := `
		SELECT node_id, task_id, node_index, parent_index, depth, title, breadcrumb, url,
			parent_title, is_pruned, is_file, file_extension
		FROM nodes WHERE task_id = ? AND is_file = 1
	`
	if prunedOnly {
		query += " AND is_pruned = 0"
	}
	query += " ORDER BY node_index ASC"

	rows, err := c.db.DB().QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file nodes for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var nodes []*models.Node
	for rows.Next() {
		var n models.Node
		var isPruned, isFile int
		if err := rows.Scan(&n.NodeID, &n.TaskID, &n.NodeIndex, &n.ParentIndex, &n.Depth, &n.Title,
			&n.Breadcrumb, &n.URL, &n.ParentTitle, &isPruned, &isFile, &n.FileExtension); err != nil {
			return nil, fmt.Errorf("failed to scan file node row: %w", err)
		}
		n.IsPruned = isPruned != 0
		n.IsFile = isFile != 0
		nodes = append(nodes, &n)
	}

	return nodes, rows.Err()
}
