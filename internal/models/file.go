package models

// DownloadStatus tracks bytes-on-blob progress, independent of naming.
type DownloadStatus string

const (
	DownloadStatusPending     DownloadStatus = "pending"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusDownloaded  DownloadStatus = "downloaded"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusFailed      DownloadStatus = "failed"
)

// ProcessStatus tracks extraction+naming progress, independent of download.
type ProcessStatus string

const (
	ProcessStatusPending    ProcessStatus = "pending"
	ProcessStatusProcessing ProcessStatus = "processing"
	ProcessStatusCompleted  ProcessStatus = "completed"
	ProcessStatusFailed     ProcessStatus = "failed"
)

// File is one downloadable document derived from a Node with
// IsFile && !IsPruned (IsPruned marks nodes the pruning pass excluded).
// A File is done when both status axes are terminal;
// it is "completed" only when both read Completed.
type File struct {
	FileID          string
	TaskID          string
	NodeID          string
	OriginalURL     string
	OriginalName    string
	RenamedName     string
	FileExtension   string
	FileSize        *int64
	StorageKey      string
	DownloadStatus  DownloadStatus
	ProcessStatus   ProcessStatus
	LLMModel        string
	LLMConfidence   *float64
	LLMRawResponse  string
	Error           string
}

// IsTerminalDownload reports whether no further download work is expected.
func (f *File) IsTerminalDownload() bool {
	return f.DownloadStatus == DownloadStatusCompleted || f.DownloadStatus == DownloadStatusFailed
}

// IsTerminalProcess reports whether no further extract/rename work is expected.
func (f *File) IsTerminalProcess() bool {
	return f.ProcessStatus == ProcessStatusCompleted || f.ProcessStatus == ProcessStatusFailed
}

// IsComplete reports the File invariant: completed requires both axes completed.
func (f *File) IsComplete() bool {
	return f.DownloadStatus == DownloadStatusCompleted && f.ProcessStatus == ProcessStatusCompleted
}
