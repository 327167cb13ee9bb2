package interfaces

import "context"

// DownloadResult is the outcome of one Downloader.Download call.
type DownloadResult struct {
	OK         bool
	StorageKey string
	Size       int64
	Err        error
}

// Downloader fetches a URL into Blob under the given destination key prefix,
// enforcing size, type, and timeout policy. Failure is per-file terminal,
// never per-task fatal.
type Downloader interface {
	Download(ctx context.Context, url, destKeyPrefix, nameOverride string) (*DownloadResult, error)
}
