package queue

// Queue names, one goqite queue per pipeline stage boundary.
const (
	TaskQueueName    = "nyushi_tasks"
	FileQueueName    = "nyushi_files"
	ExtractQueueName = "nyushi_extract"
	RenameQueueName  = "nyushi_rename"
)

// TaskMessage carries a task ready for the crawl stage. The task's own
// catalog row holds everything else; this envelope only needs to name it.
type TaskMessage struct {
	TaskID string `json:"task_id"`
}

// FileMessage carries a file ready for download.
type FileMessage struct {
	FileID string `json:"file_id"`
}

// ExtractMessage carries a downloaded file ready for text extraction.
type ExtractMessage struct {
	FileID string `json:"file_id"`
}

// RenameMessage carries an extracted file ready for the LLM naming pass.
type RenameMessage struct {
	FileID string `json:"file_id"`
}
