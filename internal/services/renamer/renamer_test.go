package renamer

import (
	"testing"

	"github.com/ternarybob/nyushi/internal/models"
)

func TestExtractJSONObjectCleanResponse(t *testing.T) {
	resp := `{"name": "Waseda_CS.pdf", "confidence": 0.9}`
	got := extractJSONObject(resp)
	if !got.Exists() {
		t.Fatalf("extractJSONObject(%q) did not parse", resp)
	}
	if got.Get("name").String() != "Waseda_CS.pdf" {
		t.Fatalf("name = %q, want Waseda_CS.pdf", got.Get("name").String())
	}
}

func TestExtractJSONObjectWithSurroundingProse(t *testing.T) {
	resp := "Sure, here is the JSON:\n```json\n{\"name\": \"Waseda_CS.pdf\"}\n```\nLet me know if you need anything else."
	got := extractJSONObject(resp)
	if !got.Exists() {
		t.Fatalf("extractJSONObject did not recover JSON from prose-wrapped response: %q", resp)
	}
	if got.Get("name").String() != "Waseda_CS.pdf" {
		t.Fatalf("name = %q, want Waseda_CS.pdf", got.Get("name").String())
	}
}

func TestExtractJSONObjectNoJSON(t *testing.T) {
	got := extractJSONObject("no json here at all")
	if got.Exists() {
		t.Fatalf("extractJSONObject should not find a json object in plain prose")
	}
}

func TestNameFromFields(t *testing.T) {
	f := models.NameFields{
		University: "Waseda", Department: "Science", Major: "CS", Course: "Intro",
		Year: "2026", Semester: "Spring", DocType: "Syllabus", Detail: "v2",
	}
	want := "Waseda_Science_CS_Intro_2026_Spring_Syllabus_v2"
	if got := nameFromFields(f); got != want {
		t.Fatalf("nameFromFields = %q, want %q", got, want)
	}
}

func TestRewriteLeadingComponent(t *testing.T) {
	got := rewriteLeadingComponent("Unknown_Science_CS_Intro_2026_Spring_Syllabus_v2", "Waseda")
	want := "Waseda_Science_CS_Intro_2026_Spring_Syllabus_v2"
	if got != want {
		t.Fatalf("rewriteLeadingComponent = %q, want %q", got, want)
	}

	if got := rewriteLeadingComponent("nounderscore", "Waseda"); got != "nounderscore" {
		t.Fatalf("rewriteLeadingComponent with no underscore should return input unchanged, got %q", got)
	}
}

func TestPostProcessName(t *testing.T) {
	cases := []struct {
		name, ext, want string
	}{
		{"Waseda_CS__Intro.pdf", "pdf", "Waseda_CS_Intro.pdf"},
		{"Waseda/CS:Intro", "pdf", "Waseda_CS_Intro.pdf"},
		{"__Waseda_CS__", "pdf", "Waseda_CS.pdf"},
		{"Waseda_CS", "", "Waseda_CS"},
	}
	for _, c := range cases {
		if got := postProcessName(c.name, c.ext); got != c.want {
			t.Errorf("postProcessName(%q, %q) = %q, want %q", c.name, c.ext, got, c.want)
		}
	}
}
