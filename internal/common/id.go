package common

import (
	"github.com/google/uuid"
)

// NewTaskID generates a unique task ID with the "task_" prefix.
func NewTaskID() string {
	return "task_" + uuid.New().String()
}

// NewNodeID generates a unique crawl node ID with the "node_" prefix.
func NewNodeID() string {
	return "node_" + uuid.New().String()
}

// NewFileID generates a unique file ID with the "file_" prefix.
func NewFileID() string {
	return "file_" + uuid.New().String()
}
