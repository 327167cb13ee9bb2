package models

import "testing"

func TestNameFieldsPositionsRoundTrip(t *testing.T) {
	n := NameFields{
		University: "Waseda",
		Department: "Science",
		Major:      "CS",
		Course:     "Intro",
		Year:       "2026",
		Semester:   "Spring",
		DocType:    "Syllabus",
		Detail:     "v2",
	}

	p := n.Positions()
	want := [8]string{"Waseda", "Science", "CS", "Intro", "2026", "Spring", "Syllabus", "v2"}
	if p != want {
		t.Fatalf("Positions() = %v, want %v", p, want)
	}

	got := FieldsFromPositions(p)
	if got != n {
		t.Fatalf("FieldsFromPositions(Positions()) = %+v, want %+v", got, n)
	}
}

func TestNameFieldsNormalizeFillsBlanks(t *testing.T) {
	n := NameFields{University: "Waseda", Detail: "  "}
	got := n.Normalize()

	want := NameFields{
		University: "Waseda",
		Department: UnknownField,
		Major:      UnknownField,
		Course:     UnknownField,
		Year:       UnknownField,
		Semester:   UnknownField,
		DocType:    UnknownField,
		Detail:     UnknownField,
	}
	if got != want {
		t.Fatalf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestNameFieldsNormalizeLeavesNonBlankFields(t *testing.T) {
	n := NameFields{University: "Waseda", DocType: "Syllabus"}
	got := n.Normalize()

	if got.University != "Waseda" || got.DocType != "Syllabus" {
		t.Fatalf("Normalize() clobbered non-blank fields: %+v", got)
	}
	if got.Department != UnknownField {
		t.Fatalf("Normalize() left Department blank: %+v", got)
	}
}

func TestImputablePositions(t *testing.T) {
	got := ImputablePositions()
	want := [3]int{0, 1, 2}
	if got != want {
		t.Fatalf("ImputablePositions() = %v, want %v", got, want)
	}
}
