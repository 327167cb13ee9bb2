package interfaces

import (
	"context"

	"github.com/ternarybob/nyushi/internal/models"
)

// Catalog is the persistent relational store of tasks, nodes, files, and
// the sync log. Every operation is atomic with respect to the entity it
// touches. Methods do not retry: failures come back as plain errors, which
// the pipeline runtime wraps in its CatalogError, and a message whose handler
// failed is retried only through queue redelivery.
type Catalog interface {
	// UpsertTask inserts a new Task for source_id, or, if one already exists,
	// resets it to pending, replaces url/url_hash/school/kind, and bumps
	// updated_at and retry_count. Used for both fresh seeds and re-attempts.
	UpsertTask(ctx context.Context, sourceID int64, url, school string, kind models.SeedKind) (taskID string, err error)

	GetTask(ctx context.Context, taskID string) (*models.Task, error)

	// GetTaskBySourceID looks up a task by its upstream source_id, used by
	// SyncDetector to find the row to cascade-delete before a changed/failed
	// retry. Returns (nil, nil) when no task exists for sourceID.
	GetTaskBySourceID(ctx context.Context, sourceID int64) (*models.Task, error)

	// UpdateTaskStatus applies a monotonic status transition plus an optional
	// patch. Stamps started_at entering crawling, completed_at entering
	// completed/failed.
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, patch models.TaskStatusPatch) error

	// GetAllTaskSourceIDs returns every source_id currently in Catalog.
	GetAllTaskSourceIDs(ctx context.Context) (map[int64]struct{}, error)

	// GetChangedSourceIDs compares the given upstream hashes against Catalog's
	// stored url_hash and returns the source_ids that diverge.
	GetChangedSourceIDs(ctx context.Context, upstreamHashes map[int64]string) ([]int64, error)

	ListTasksByStatus(ctx context.Context, status models.TaskStatus, limit int) ([]*models.Task, error)

	// BatchInsertNodes upserts keyed by (task_id, node_index); overwrites
	// title/breadcrumb/url/parent_title/is_file/file_extension, never is_pruned.
	BatchInsertNodes(ctx context.Context, taskID string, nodes []*models.Node) error

	// MarkNodesPruned resets every node of the task to is_pruned=false, then
	// sets true for the listed indices. Re-callable without loss.
	MarkNodesPruned(ctx context.Context, taskID string, indices []int) error

	GetNode(ctx context.Context, nodeID string) (*models.Node, error)
	GetFileNodes(ctx context.Context, taskID string, prunedOnly bool) ([]*models.Node, error)

	// CreateFileRecord is an unconditional insert; duplicates are tolerated,
	// downstream idempotency hinges on the returned file_id.
	CreateFileRecord(ctx context.Context, taskID, nodeID, url, name, ext string) (fileID string, err error)

	UpdateFileDownload(ctx context.Context, fileID string, status models.DownloadStatus, storageKey string, size *int64, errMsg string) error
	UpdateFileRenamed(ctx context.Context, fileID, name, model string, confidence float64, raw string) error
	UpdateFileProcessFailed(ctx context.Context, fileID, errMsg string) error

	GetFile(ctx context.Context, fileID string) (*models.File, error)
	GetPendingProcessFiles(ctx context.Context, taskID string) ([]*models.File, error)
	GetFilesByStatus(ctx context.Context, status models.DownloadStatus, limit int) ([]*models.File, error)
	GetFilesByTask(ctx context.Context, taskID string) ([]*models.File, error)

	// DeleteTaskCascade removes a Task and all child Nodes, Files, and
	// visualization records. Used for re-attempts of changed/failed seeds.
	DeleteTaskCascade(ctx context.Context, taskID string) error

	UpsertVisualization(ctx context.Context, taskID string, kind models.VisualizationKind, storageKey string) error
	GetVisualization(ctx context.Context, taskID string, kind models.VisualizationKind) (string, bool, error)

	AppendSyncLog(ctx context.Context, log *models.SyncLog) error

	Close() error
}
