package crawler

import (
	"testing"

	"github.com/ternarybob/arbor"
)

func newTestLinkExtractor() *LinkExtractor {
	return NewLinkExtractor(arbor.NewLogger())
}

func TestExtractLinksResolvesAndDeduplicates(t *testing.T) {
	le := newTestLinkExtractor()

	html := `
	<html><body>
		<a href="/admissions/2026">Admissions</a>
		<a href="/admissions/2026">Admissions Again</a>
		<a href="https://other.ac.jp/syllabus.pdf">Syllabus</a>
		<a href="#section">Jump</a>
		<a href="mailto:info@waseda.jp">Contact</a>
		<a href="javascript:void(0)">Nothing</a>
	</body></html>`

	links, err := le.ExtractLinks(html, "https://www.waseda.jp/index.html")
	if err != nil {
		t.Fatalf("ExtractLinks returned error: %v", err)
	}

	want := map[string]bool{
		"https://www.waseda.jp/admissions/2026": true,
		"https://other.ac.jp/syllabus.pdf":       true,
	}
	if len(links) != len(want) {
		t.Fatalf("ExtractLinks returned %d links, want %d: %v", len(links), len(want), links)
	}
	for _, l := range links {
		if !want[l] {
			t.Errorf("unexpected link in result: %s", l)
		}
	}
}

func TestShouldSkipLink(t *testing.T) {
	le := newTestLinkExtractor()

	skip := []string{"", "  ", "#top", "javascript:void(0)", "mailto:a@b.jp", "tel:+81312345678", "data:image/png;base64,xxx"}
	for _, href := range skip {
		if !le.shouldSkipLink(href) {
			t.Errorf("shouldSkipLink(%q) = false, want true", href)
		}
	}

	keep := []string{"/admissions/2026", "https://example.ac.jp/syllabus.pdf", "page.html"}
	for _, href := range keep {
		if le.shouldSkipLink(href) {
			t.Errorf("shouldSkipLink(%q) = true, want false", href)
		}
	}
}

func TestFilterLinksIncludeExcludePatterns(t *testing.T) {
	le := newTestLinkExtractor()

	links := []string{
		"https://www.waseda.jp/admissions/2026",
		"https://www.waseda.jp/news/2026",
		"https://www.waseda.jp/admissions/archive/2020",
	}

	result := le.FilterLinks(links, []string{`/admissions/`}, []string{`/archive/`})

	if result.Found != 3 {
		t.Fatalf("Found = %d, want 3", result.Found)
	}
	if result.Filtered != 1 {
		t.Fatalf("Filtered = %d, want 1 (only the non-archived admissions link), got links: %v", result.Filtered, result.FilteredLinks)
	}
	if result.FilteredLinks[0] != "https://www.waseda.jp/admissions/2026" {
		t.Fatalf("FilteredLinks[0] = %q, want the non-archived admissions link", result.FilteredLinks[0])
	}
	if result.Excluded != 2 {
		t.Fatalf("Excluded = %d, want 2", result.Excluded)
	}
}

func TestFilterLinksNoIncludePatternsIncludesEverything(t *testing.T) {
	le := newTestLinkExtractor()
	links := []string{"https://www.waseda.jp/a", "https://www.waseda.jp/b"}

	result := le.FilterLinks(links, nil, nil)
	if result.Filtered != len(links) {
		t.Fatalf("Filtered = %d, want %d when no patterns are given", result.Filtered, len(links))
	}
}
