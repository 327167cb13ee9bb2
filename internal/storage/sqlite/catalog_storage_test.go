package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/models"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	cfg := &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "catalog.db"),
		BusyTimeoutMS: 5000,
		CacheSizeMB:   8,
	}

	cat, err := NewCatalog(arbor.NewLogger(), cfg)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	return cat
}

func TestUpsertTaskIsIdempotent(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	id1, err := cat.UpsertTask(ctx, 7, "https://u.example/admissions", "東京大学", models.SeedKindUndergraduate)
	if err != nil {
		t.Fatalf("UpsertTask() first call error = %v", err)
	}

	first, err := cat.GetTask(ctx, id1)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}

	id2, err := cat.UpsertTask(ctx, 7, "https://u.example/admissions", "東京大学", models.SeedKindUndergraduate)
	if err != nil {
		t.Fatalf("UpsertTask() second call error = %v", err)
	}
	if id2 != id1 {
		t.Fatalf("UpsertTask() repeated for the same source_id returned a different task_id: %q != %q", id2, id1)
	}

	second, err := cat.GetTask(ctx, id2)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}

	if second.SourceID != first.SourceID || second.SourceURL != first.SourceURL ||
		second.URLHash != first.URLHash || second.SchoolName != first.SchoolName ||
		second.Kind != first.Kind || second.Status != first.Status {
		t.Fatalf("UpsertTask() is not idempotent: first=%+v second=%+v", first, second)
	}
}

func TestBatchInsertNodesIsIdempotentOnRowCount(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	taskID, err := cat.UpsertTask(ctx, 1, "https://u.example/admissions", "早稲田大学", models.SeedKindGraduate)
	if err != nil {
		t.Fatalf("UpsertTask() error = %v", err)
	}

	nodes := []*models.Node{
		{NodeIndex: 0, ParentIndex: -1, Depth: 0, URL: "https://u.example/admissions"},
		{NodeIndex: 1, ParentIndex: 0, Depth: 1, URL: "https://u.example/admissions/pdf1", IsFile: true},
	}

	if err := cat.BatchInsertNodes(ctx, taskID, nodes); err != nil {
		t.Fatalf("BatchInsertNodes() first call error = %v", err)
	}

	countAfterFirst := nodeCount(t, cat, taskID)
	if countAfterFirst != 2 {
		t.Fatalf("node count after first insert = %d, want 2", countAfterFirst)
	}

	// Re-run with the same payload: NodeID is already set on each element
	// from the first call, so the unique (task_id, node_index) index turns
	// the repeat into a no-op rather than a duplicate-row insert.
	if err := cat.BatchInsertNodes(ctx, taskID, nodes); err != nil {
		t.Fatalf("BatchInsertNodes() second call error = %v", err)
	}

	countAfterSecond := nodeCount(t, cat, taskID)
	if countAfterSecond != countAfterFirst {
		t.Fatalf("node count changed on repeat insert: %d != %d", countAfterSecond, countAfterFirst)
	}
}

func TestMarkNodesPrunedReplacesPriorSet(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	taskID, err := cat.UpsertTask(ctx, 2, "https://u.example/admissions", "慶應義塾大学", models.SeedKindUndergraduate)
	if err != nil {
		t.Fatalf("UpsertTask() error = %v", err)
	}

	nodes := []*models.Node{
		{NodeIndex: 0, ParentIndex: -1, Depth: 0, URL: "https://u.example/a"},
		{NodeIndex: 1, ParentIndex: 0, Depth: 1, URL: "https://u.example/b"},
		{NodeIndex: 2, ParentIndex: 0, Depth: 1, URL: "https://u.example/c"},
	}
	if err := cat.BatchInsertNodes(ctx, taskID, nodes); err != nil {
		t.Fatalf("BatchInsertNodes() error = %v", err)
	}

	if err := cat.MarkNodesPruned(ctx, taskID, []int{0, 1}); err != nil {
		t.Fatalf("MarkNodesPruned() first call error = %v", err)
	}
	if got := prunedIndices(t, ctx, cat, taskID); !sameInts(got, []int{0, 1}) {
		t.Fatalf("pruned indices after first call = %v, want [0 1]", got)
	}

	if err := cat.MarkNodesPruned(ctx, taskID, []int{2}); err != nil {
		t.Fatalf("MarkNodesPruned() second call error = %v", err)
	}
	if got := prunedIndices(t, ctx, cat, taskID); !sameInts(got, []int{2}) {
		t.Fatalf("pruned indices after second call = %v, want [2] (prior set must be cleared)", got)
	}
}

func nodeCount(t *testing.T, cat *Catalog, taskID string) int {
	t.Helper()
	var n int
	if err := cat.db.DB().QueryRow(`SELECT COUNT(*) FROM nodes WHERE task_id = ?`, taskID).Scan(&n); err != nil {
		t.Fatalf("count nodes: %v", err)
	}
	return n
}

func prunedIndices(t *testing.T, ctx context.Context, cat *Catalog, taskID string) []int {
	t.Helper()
	rows, err := cat.db.DB().QueryContext(ctx, `SELECT node_index FROM nodes WHERE task_id = ? AND is_pruned = 1 ORDER BY node_index ASC`, taskID)
	if err != nil {
		t.Fatalf("query pruned nodes: %v", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			t.Fatalf("scan pruned node: %v", err)
		}
		out = append(out, idx)
	}
	return out
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
