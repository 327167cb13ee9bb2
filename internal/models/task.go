package models

import "time"

// TaskStatus is the task state-machine lattice. Transitions are monotonic
// except that upsert_task may re-enter pending, which counts as an
// entity-wipe rather than a normal transition.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCrawling  TaskStatus = "crawling"
	TaskStatusDownload  TaskStatus = "downloaded"
	TaskStatusProcess   TaskStatus = "processing"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is one processing attempt for one Seed. SourceID is unique; TaskID is
// the surrogate key everything downstream (Node, File) references.
type Task struct {
	TaskID       string
	SourceID     int64
	SourceURL    string
	URLHash      string // md5(SourceURL)
	SchoolName   string
	Kind         SeedKind // undergraduate or graduate, carried from the originating Seed
	Status       TaskStatus
	NodeCount    int
	PrunedCount  int
	FileCount    int
	RetryCount   int // bumped each time upsert_task resets an existing row to pending
	Error        string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskStatusPatch carries the optional fields update_task_status may set
// alongside the status transition itself.
type TaskStatusPatch struct {
	NodeCount   *int
	PrunedCount *int
	FileCount   *int
	Error       *string
}
