package sqlite

const schemaSQL = `
-- tasks: one row per upstream seed this run has ever touched. status
-- follows pending -> crawling -> downloaded -> processing -> {completed|failed}.
CREATE TABLE IF NOT EXISTS tasks (
	task_id TEXT PRIMARY KEY,
	source_id INTEGER NOT NULL,
	source_url TEXT NOT NULL,
	url_hash TEXT NOT NULL,
	school_name TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	node_count INTEGER DEFAULT 0,
	pruned_count INTEGER DEFAULT 0,
	file_count INTEGER DEFAULT 0,
	retry_count INTEGER DEFAULT 0,
	error TEXT,
	started_at INTEGER,
	completed_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_source_id ON tasks(source_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_tasks_url_hash ON tasks(url_hash);

-- nodes: the flattened crawl tree for a task, in discovery order.
-- parent_index = -1 marks the seed root.
CREATE TABLE IF NOT EXISTS nodes (
	node_id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	node_index INTEGER NOT NULL,
	parent_index INTEGER NOT NULL,
	depth INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	breadcrumb TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	parent_title TEXT NOT NULL DEFAULT '',
	is_pruned INTEGER DEFAULT 0,
	is_file INTEGER DEFAULT 0,
	file_extension TEXT DEFAULT '',
	FOREIGN KEY (task_id) REFERENCES tasks(task_id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_task_index ON nodes(task_id, node_index);
CREATE INDEX IF NOT EXISTS idx_nodes_task_pruned ON nodes(task_id, is_pruned);
CREATE INDEX IF NOT EXISTS idx_nodes_task_file ON nodes(task_id, is_file, is_pruned);

-- files: one row per node retained as a downloadable file. Two independent
-- status axes track download and post-download processing.
CREATE TABLE IF NOT EXISTS files (
	file_id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	source_url TEXT NOT NULL,
	original_name TEXT NOT NULL DEFAULT '',
	extension TEXT NOT NULL DEFAULT '',
	storage_key TEXT DEFAULT '',
	size_bytes INTEGER DEFAULT 0,
	download_status TEXT NOT NULL DEFAULT 'pending',
	process_status TEXT NOT NULL DEFAULT 'pending',
	canonical_name TEXT DEFAULT '',
	llm_model TEXT DEFAULT '',
	llm_confidence REAL,
	llm_raw_response TEXT DEFAULT '',
	error TEXT,
	retry_count INTEGER DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (task_id) REFERENCES tasks(task_id) ON DELETE CASCADE,
	FOREIGN KEY (node_id) REFERENCES nodes(node_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_files_task ON files(task_id);
CREATE INDEX IF NOT EXISTS idx_files_download_status ON files(download_status, updated_at);
CREATE INDEX IF NOT EXISTS idx_files_process_status ON files(process_status, updated_at);

-- sync_log: audit trail of every SyncDetector.Detect pass.
CREATE TABLE IF NOT EXISTS sync_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	source_count INTEGER DEFAULT 0,
	new_count INTEGER DEFAULT 0,
	changed_count INTEGER DEFAULT 0,
	kind TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sync_log_timestamp ON sync_log(timestamp DESC);

-- visualizations: per-task raw/pruned HTML artifacts for debugging the
-- pruning pass.
CREATE TABLE IF NOT EXISTS visualizations (
	task_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	html TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (task_id, kind),
	FOREIGN KEY (task_id) REFERENCES tasks(task_id) ON DELETE CASCADE
);

-- llm_audit_log: every Claude call made by the pruning pass or the Renamer.
CREATE TABLE IF NOT EXISTS llm_audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	operation TEXT NOT NULL,
	success INTEGER NOT NULL,
	error TEXT,
	duration INTEGER NOT NULL,
	query_text TEXT
);

CREATE INDEX IF NOT EXISTS idx_llm_audit_operation ON llm_audit_log(operation, timestamp DESC);
`

// InitSchema creates every catalog table if absent. There is no migration
// history to run: this is schema version 1.
func (s *SQLiteDB) InitSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return err
	}
	s.logger.Info().Msg("catalog schema initialized")
	return nil
}
