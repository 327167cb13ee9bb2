package sync

import (
	"testing"

	"github.com/ternarybob/nyushi/internal/models"
)

func TestURLHashIsStableAndDistinct(t *testing.T) {
	a := urlHash("https://www.waseda.jp/admissions/2026")
	b := urlHash("https://www.waseda.jp/admissions/2026")
	c := urlHash("https://www.waseda.jp/admissions/2027")

	if a != b {
		t.Fatalf("urlHash is not stable for the same input: %q != %q", a, b)
	}
	if a == c {
		t.Fatalf("urlHash collided for different URLs")
	}
	if len(a) != 32 {
		t.Fatalf("urlHash length = %d, want 32 (hex md5)", len(a))
	}
}

func TestMergeDedupeByURLPrefersEarliestSet(t *testing.T) {
	newSeeds := []*models.Seed{{SourceID: 1, URL: "https://a.ac.jp/x"}}
	changedSeeds := []*models.Seed{
		{SourceID: 2, URL: "https://a.ac.jp/x"}, // duplicate of newSeeds[0]'s URL
		{SourceID: 3, URL: "https://a.ac.jp/y"},
	}
	failedSeeds := []*models.Seed{{SourceID: 4, URL: "https://a.ac.jp/z"}}

	merged := mergeDedupeByURL(newSeeds, changedSeeds, failedSeeds)

	if len(merged) != 3 {
		t.Fatalf("merged has %d entries, want 3 (deduped by URL): %+v", len(merged), merged)
	}
	if merged[0].SourceID != 1 {
		t.Fatalf("merged[0].SourceID = %d, want 1 (new-set entry should win over the changed-set duplicate)", merged[0].SourceID)
	}
}

func TestMergeDedupeByURLEmptyInput(t *testing.T) {
	merged := mergeDedupeByURL()
	if len(merged) != 0 {
		t.Fatalf("mergeDedupeByURL() with no sets = %d entries, want 0", len(merged))
	}
}
