package pipeline

import (
	"errors"
	"strings"
)

// Sentinel errors a stage handler can wrap and that a caller checks with
// errors.Is, mirroring the catalog/queue packages' plain fmt.Errorf style.
var (
	ErrOversize         = errors.New("pipeline: file exceeds configured size limit")
	ErrUnsupportedType  = errors.New("pipeline: unsupported file extension")
	ErrRenderTimeout    = errors.New("pipeline: page render exceeded timeout")
	ErrExtraction       = errors.New("pipeline: text extraction failed")
	ErrRename           = errors.New("pipeline: llm naming failed")
	ErrCancelled        = errors.New("pipeline: cancelled")
)

// CatalogError wraps a Catalog failure with whether the caller should treat
// it as transient (SQLITE_BUSY, connection hiccups) or terminal.
type CatalogError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *CatalogError) Error() string {
	return "pipeline: catalog " + e.Op + ": " + e.Err.Error()
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// newCatalogError classifies err the same way queue.isTransientBusy does
// (SQLITE_BUSY/"database is locked" are routine under concurrent stage
// access and clear on redelivery) and builds the CatalogError around that
// verdict. Anything else - constraint violations, a missing table, a
// corrupted database file - is not going to resolve itself on redelivery,
// so it comes back Retryable: false.
func newCatalogError(op string, err error) *CatalogError {
	return &CatalogError{Op: op, Err: err, Retryable: isTransientCatalogErr(err)}
}

func isTransientCatalogErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
