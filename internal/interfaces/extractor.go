package interfaces

import "context"

// ExtractResult is the Extractor adapter's output: text bounded to a
// configurable size (truncation is acceptable), with an optional per-page
// breakdown when the source format has pages.
type ExtractResult struct {
	Text  string
	Pages []PDFPageContent // reused PDF-style page shape; empty for non-paged formats
}

// Extractor pulls text out of file bytes for a given extension. Any
// underlying panic/exception is converted to err; it must never leak to the
// caller's goroutine.
type Extractor interface {
	Extract(ctx context.Context, data []byte, ext string) (*ExtractResult, error)
}
