package interfaces

import (
	"context"

	"github.com/ternarybob/nyushi/internal/models"
)

// RenameContext carries everything the Renamer needs beyond the extracted
// text: where the file came from and, if the upstream catalog knows it, the
// authoritative school name that overrides whatever the LLM infers.
type RenameContext struct {
	URL          string
	Breadcrumb   string
	ParentTitle  string
	OriginalName string
	SchoolName   string // authoritative override, empty if unknown
}

// RenameResult is the Renamer adapter's structured naming output.
type RenameResult struct {
	Name        string
	Fields      models.NameFields
	Confidence  float64
	RawResponse string
	Err         error
}

// Renamer maps extracted text plus context to a structured canonical name.
// If ctx.SchoolName is set, the returned fields.University is overridden by
// it and name's leading component is rewritten to match.
type Renamer interface {
	Rename(ctx context.Context, text string, rnCtx RenameContext) (*RenameResult, error)
}
