package models

import "strings"

// UnknownField is the literal placeholder used for any naming field the
// Renamer could not determine.
const UnknownField = "Unknown"

// NameFields is the eight-position canonical filename schema:
//
//	{university}_{department}_{major}_{course}_{year}_{semester}_{doc_type}_{detail}.{ext}
//	     0            1          2        3       4        5          6          7
//
// Imputation only ever rewrites positions 0-2.
type NameFields struct {
	University string
	Department string
	Major      string
	Course     string
	Year       string
	Semester   string
	DocType    string
	Detail     string
}

// imputablePositions lists the indices Unknown-imputation is allowed to touch.
var imputablePositions = [3]int{0, 1, 2}

// Positions returns the eight fields in their fixed schema order.
func (n NameFields) Positions() [8]string {
	return [8]string{n.University, n.Department, n.Major, n.Course, n.Year, n.Semester, n.DocType, n.Detail}
}

// FieldsFromPositions rebuilds a NameFields from the eight positional values.
func FieldsFromPositions(p [8]string) NameFields {
	return NameFields{
		University: p[0], Department: p[1], Major: p[2], Course: p[3],
		Year: p[4], Semester: p[5], DocType: p[6], Detail: p[7],
	}
}

// Normalize replaces any blank field with the Unknown literal.
func (n NameFields) Normalize() NameFields {
	p := n.Positions()
	for i, v := range p {
		if strings.TrimSpace(v) == "" {
			p[i] = UnknownField
		}
	}
	return FieldsFromPositions(p)
}

// ImputablePositions returns the position indices Unknown-imputation may rewrite.
func ImputablePositions() [3]int {
	return imputablePositions
}
