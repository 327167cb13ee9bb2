package llm

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ternarybob/arbor"
)

// AuditLog is one recorded Claude call: the crawl pruning pass and the
// Renamer both log through the same table, and ClaudeService records every
// call with Operation "chat", so entries do not say which caller made them.
type AuditLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"` // "chat" for every ClaudeService call
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Duration  int64     `json:"duration_ms"`
	QueryText string    `json:"query_text,omitempty"`
}

// AuditLogger records every outbound Claude call for later inspection.
type AuditLogger interface {
	LogChat(operation string, success bool, duration time.Duration, err error, queryText string) error
	GetLogs(limit int) ([]AuditLog, error)
	ExportToJSON(w io.Writer) error
	Close() error
}

// SQLiteAuditLogger persists audit entries to the catalog's llm_audit_log
// table, sharing the Catalog's *sql.DB handle.
type SQLiteAuditLogger struct {
	db         *sql.DB
	logQueries bool
	logger     arbor.ILogger
}

// NewSQLiteAuditLogger creates a new SQLite-backed audit logger.
func NewSQLiteAuditLogger(db *sql.DB, logQueries bool, logger arbor.ILogger) *SQLiteAuditLogger {
	return &SQLiteAuditLogger{
		db:         db,
		logQueries: logQueries,
		logger:     logger,
	}
}

// LogChat records one chat-completion call.
func (l *SQLiteAuditLogger) LogChat(operation string, success bool, duration time.Duration, opErr error, queryText string) error {
	timestamp := time.Now().Format(time.RFC3339)
	durationMs := duration.Milliseconds()

	var errorMsg string
	if opErr != nil {
		errorMsg = opErr.Error()
	}

	var query string
	if l.logQueries {
		query = queryText
	}

	insertSQL := `
		INSERT INTO llm_audit_log (timestamp, operation, success, error, duration, query_text)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := l.db.Exec(insertSQL, timestamp, operation, success, errorMsg, durationMs, query)
	if err != nil {
		l.logger.Error().Err(err).Str("operation", operation).Msg("Failed to insert audit log entry")
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetLogs retrieves the most recent audit entries, newest first.
func (l *SQLiteAuditLogger) GetLogs(limit int) ([]AuditLog, error) {
	query := `
		SELECT id, timestamp, operation, success, error, duration, query_text
		FROM llm_audit_log
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := l.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

// ExportToJSON writes every audit entry to w as an indented JSON array.
func (l *SQLiteAuditLogger) ExportToJSON(w io.Writer) error {
	query := `
		SELECT id, timestamp, operation, success, error, duration, query_text
		FROM llm_audit_log
		ORDER BY timestamp ASC
	`

	rows, err := l.db.Query(query)
	if err != nil {
		return fmt.Errorf("failed to query audit logs for export: %w", err)
	}
	defer rows.Close()

	logs, err := scanAuditRows(rows)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(logs); err != nil {
		return fmt.Errorf("failed to encode audit logs to JSON: %w", err)
	}

	return nil
}

func scanAuditRows(rows *sql.Rows) ([]AuditLog, error) {
	var logs []AuditLog
	for rows.Next() {
		var entry AuditLog
		var timestampStr string
		var errorMsg sql.NullString
		var queryText sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&timestampStr,
			&entry.Operation,
			&entry.Success,
			&errorMsg,
			&entry.Duration,
			&queryText,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log row: %w", err)
		}

		parsed, err := time.Parse(time.RFC3339, timestampStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		entry.Timestamp = parsed

		if errorMsg.Valid {
			entry.Error = errorMsg.String
		}
		if queryText.Valid {
			entry.QueryText = queryText.String
		}

		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}

// Close is a no-op: the SQLite connection is owned by the Catalog.
func (l *SQLiteAuditLogger) Close() error {
	return nil
}
