package models

import "time"

// SyncLog is an append-only record of one SyncDetector invocation.
type SyncLog struct {
	ID           int64
	Timestamp    time.Time
	SourceCount  int
	NewCount     int
	ChangedCount int
	Kind         string // run label; SyncDetector always records "incremental"
}

// VisualizationKind distinguishes the two stored crawl-tree renderings.
type VisualizationKind string

const (
	VisualizationRaw    VisualizationKind = "raw"
	VisualizationPruned VisualizationKind = "pruned"
)
