package models

// RootParentIndex is the parent_index value reserved for a task's root node.
const RootParentIndex = -1

// Node is one URL discovered by the Crawler under a Task. Identity is
// (TaskID, NodeIndex); nodes are created in a single batch when the crawl
// completes and are never updated afterward except for the IsPruned mark.
type Node struct {
	NodeID       string
	TaskID       string
	NodeIndex    int
	ParentIndex  int // RootParentIndex for the root node
	Depth        int
	Title        string
	Breadcrumb   string
	URL          string
	ParentTitle  string
	IsPruned     bool
	IsFile       bool
	FileExtension string // empty when !IsFile
}
