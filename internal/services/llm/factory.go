package llm

import (
	"database/sql"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/interfaces"
)

// NewLLMService builds the single-provider Claude LLMService plus an audit
// logger writing to the catalog's llm_audit_log table (db is the Catalog's
// shared *sql.DB, so audit entries are visible alongside tasks/files).
func NewLLMService(cfg *common.Config, db *sql.DB, logger arbor.ILogger) (interfaces.LLMService, AuditLogger, error) {
	auditLogger := NewSQLiteAuditLogger(db, true, logger)

	service, err := NewClaudeService(&cfg.Claude, auditLogger, logger)
	if err != nil {
		return nil, nil, err
	}

	return service, auditLogger, nil
}
