package interfaces

import (
	"context"

	"github.com/ternarybob/nyushi/internal/models"
)

// UpstreamCatalog is the read-only external admissions-source catalog.
// The core never writes through this interface.
type UpstreamCatalog interface {
	// ListSeeds returns every row filtered to {graduate, undergraduate}
	// table_name values; kindFilter, if non-empty, narrows further.
	ListSeeds(ctx context.Context, kindFilter models.SeedKind) ([]*models.Seed, error)
	GetSchoolName(ctx context.Context, kind models.SeedKind, rowID string) (string, bool, error)
}

// SyncDetector diffs the upstream catalog against Catalog and emits the set
// of seeds needing (re)processing.
type SyncDetector interface {
	// Detect computes New ∪ Changed ∪ (Failed if includeFailed), deduplicated
	// by URL (an earlier set's entry wins; within a set, the lowest
	// source_id), and records one SyncLog row.
	Detect(ctx context.Context, opts DetectOptions) ([]*models.Seed, error)
}

// DetectOptions mirrors the SyncDetector-relevant configuration surface.
type DetectOptions struct {
	IncludeFailed  bool
	IncludeChanged bool
	KindFilter     models.SeedKind // empty means no filter
	BatchSize      int
}
