package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/models"
)

// CreateFileRecord inserts a file row for a surviving file node, status
// pending on both axes.
func (c *Catalog) CreateFileRecord(ctx context.Context, taskID, nodeID, url, name, ext string) (string, error) {
	fileID := common.NewFileID()
	now := time.Now().Unix()

	_, err := c.db.DB().ExecContext(ctx, `
		INSERT INTO files (file_id, task_id, node_id, source_url, original_name, extension,
			download_status, process_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, fileID, taskID, nodeID, url, name, ext, models.DownloadStatusPending, models.ProcessStatusPending, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to create file record for node %s: %w", nodeID, err)
	}

	return fileID, nil
}

// UpdateFileDownload records the outcome of a download attempt: the blob
// storage key and size on success, or an error message and failed status.
func (c *Catalog) UpdateFileDownload(ctx context.Context, fileID string, status models.DownloadStatus, storageKey string, size *int64, errMsg string) error {
	now := time.Now().Unix()

	var sizeVal interface{}
	if size != nil {
		sizeVal = *size
	}

	var errVal interface{}
	if errMsg != "" {
		errVal = errMsg
	}

	_, err := c.db.DB().ExecContext(ctx, `
		UPDATE files
		SET download_status = ?, storage_key = ?, size_bytes = COALESCE(?, size_bytes), error = ?, updated_at = ?
		WHERE file_id = ?
	`, status, storageKey, sizeVal, errVal, now, fileID)
	if err != nil {
		return fmt.Errorf("failed to update file %s download status: %w", fileID, err)
	}

	return nil
}

// UpdateFileRenamed records a successful Renamer pass: the composed
// canonical name, the model that produced it, its confidence, and the raw
// response for audit. process_status moves to completed.
func (c *Catalog) UpdateFileRenamed(ctx context.Context, fileID, name, model string, confidence float64, raw string) error {
	now := time.Now().Unix()

	_, err := c.db.DB().ExecContext(ctx, `
		UPDATE files
		SET canonical_name = ?, llm_model = ?, llm_confidence = ?, llm_raw_response = ?,
			process_status = ?, error = NULL, updated_at = ?
		WHERE file_id = ?
	`, name, model, confidence, raw, models.ProcessStatusCompleted, now, fileID)
	if err != nil {
		return fmt.Errorf("failed to update file %s renamed state: %w", fileID, err)
	}

	return nil
}

// UpdateFileProcessFailed marks a file's extract/rename stage failed and
// bumps its retry_count.
func (c *Catalog) UpdateFileProcessFailed(ctx context.Context, fileID, errMsg string) error {
	now := time.Now().Unix()

	_, err := c.db.DB().ExecContext(ctx, `
		UPDATE files
		SET process_status = ?, error = ?, retry_count = retry_count + 1, updated_at = ?
		WHERE file_id = ?
	`, models.ProcessStatusFailed, errMsg, now, fileID)
	if err != nil {
		return fmt.Errorf("failed to mark file %s process failed: %w", fileID, err)
	}

	return nil
}

func (c *Catalog) GetFile(ctx context.Context, fileID string) (*models.File, error) {
	row := c.db.DB().QueryRowContext(ctx, `
		SELECT file_id, task_id, node_id, source_url, original_name, extension, storage_key,
			size_bytes, download_status, process_status, canonical_name, llm_model, llm_confidence,
			llm_raw_response, error
		FROM files WHERE file_id = ?
	`, fileID)

	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func scanFile(row *sql.Row) (*models.File, error) {
	var f models.File
	var size sql.NullInt64
	var confidence sql.NullFloat64
	var errMsg sql.NullString

	err := row.Scan(&f.FileID, &f.TaskID, &f.NodeID, &f.OriginalURL, &f.OriginalName, &f.FileExtension,
		&f.StorageKey, &size, &f.DownloadStatus, &f.ProcessStatus, &f.RenamedName, &f.LLMModel,
		&confidence, &f.LLMRawResponse, &errMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}

	if size.Valid {
		f.FileSize = &size.Int64
	}
	if confidence.Valid {
		f.LLMConfidence = &confidence.Float64
	}
	if errMsg.Valid {
		f.Error = errMsg.String
	}

	return &f, nil
}

func scanFileRows(rows *sql.Rows) (*models.File, error) {
	var f models.File
	var size sql.NullInt64
	var confidence sql.NullFloat64
	var errMsg sql.NullString

	err := rows.Scan(&f.FileID, &f.TaskID, &f.NodeID, &f.OriginalURL, &f.OriginalName, &f.FileExtension,
		&f.StorageKey, &size, &f.DownloadStatus, &f.ProcessStatus, &f.RenamedName, &f.LLMModel,
		&confidence, &f.LLMRawResponse, &errMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to scan file row: %w", err)
	}

	if size.Valid {
		f.FileSize = &size.Int64
	}
	if confidence.Valid {
		f.LLMConfidence = &confidence.Float64
	}
	if errMsg.Valid {
		f.Error = errMsg.String
	}

	return &f, nil
}

// GetPendingProcessFiles returns downloaded files still awaiting
// extract/rename for a task, the ExtractWorkers' resumption query.
func (c *Catalog) GetPendingProcessFiles(ctx context.Context, taskID string) ([]*models.File, error) {
	rows, err := c.db.DB().QueryContext(ctx, `
		SELECT file_id, task_id, node_id, source_url, original_name, extension, storage_key,
			size_bytes, download_status, process_status, canonical_name, llm_model, llm_confidence,
			llm_raw_response, error
		FROM files
		WHERE task_id = ? AND download_status = ? AND process_status = ?
		ORDER BY created_at ASC
	`, taskID, models.DownloadStatusCompleted, models.ProcessStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending process files for task %s: %w", taskID, err)
	}
	defer rows.Close()

	return scanFileList(rows)
}

func scanFileList(rows *sql.Rows) ([]*models.File, error) {
	var files []*models.File
	for rows.Next() {
		f, err := scanFileRows(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (c *Catalog) GetFilesByStatus(ctx context.Context, status models.DownloadStatus, limit int) ([]*models.File, error) {
	rows, err := c.db.DB().QueryContext(ctx, `
		SELECT file_id, task_id, node_id, source_url, original_name, extension, storage_key,
			size_bytes, download_status, process_status, canonical_name, llm_model, llm_confidence,
			llm_raw_response, error
		FROM files WHERE download_status = ? ORDER BY updated_at ASC LIMIT ?
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query files by status %s: %w", status, err)
	}
	defer rows.Close()

	return scanFileList(rows)
}

func (c *Catalog) GetFilesByTask(ctx context.Context, taskID string) ([]*models.File, error) {
	rows, err := c.db.DB().QueryContext(ctx, `
		SELECT file_id, task_id, node_id, source_url, original_name, extension, storage_key,
			size_bytes, download_status, process_status, canonical_name, llm_model, llm_confidence,
			llm_raw_response, error
		FROM files WHERE task_id = ? ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files for task %s: %w", taskID, err)
	}
	defer rows.Close()

	return scanFileList(rows)
}
