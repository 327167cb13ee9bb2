// -----------------------------------------------------------------------
// Upstream catalog adapter - a read-only view over the external admissions
// source catalog, modeled here as a second SQLite database so SyncDetector
// can be exercised end-to-end without a live external system.
// -----------------------------------------------------------------------

package upstream

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/interfaces"
	"github.com/ternarybob/nyushi/internal/models"
)

// schemaSQL models the external source: a `links` table (table_name is
// "undergraduate"/"graduate"/"vocational", row_id points into the
// per-kind table) plus one table per kind carrying a `school` column,
// grounded on original_source/db/source_db.py's LinkRecord shape.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS links (
	id         INTEGER PRIMARY KEY,
	table_name TEXT NOT NULL,
	row_id     INTEGER NOT NULL,
	url        TEXT NOT NULL,
	created_at TEXT
);

CREATE TABLE IF NOT EXISTS undergraduate (
	id     INTEGER PRIMARY KEY,
	school TEXT
);

CREATE TABLE IF NOT EXISTS graduate (
	id     INTEGER PRIMARY KEY,
	school TEXT
);
`

// Catalog implements interfaces.UpstreamCatalog over a read-only SQLite
// database. The core never writes through this adapter.
type Catalog struct {
	db     *sql.DB
	logger arbor.ILogger
}

// Open connects to the upstream database at config.Path, creating the
// schema if absent (a fresh local file starts empty; this adapter never
// expects to be pointed at a live production source in this deployment).
func Open(logger arbor.ILogger, config common.UpstreamConfig) (*Catalog, error) {
	path := config.Path
	if path == "" {
		path = "./data/upstream.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("upstream: open %s: %w", path, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("upstream: init schema: %w", err)
	}

	return &Catalog{db: db, logger: logger}, nil
}

var _ interfaces.UpstreamCatalog = (*Catalog)(nil)

// ListSeeds returns every links row filtered to undergraduate/graduate
// table_name values, narrowed further by kindFilter when non-empty -
// mirrors get_all_links's `table_name IN ('graduate', 'undergraduate')`
// exclusion of "vocational" rows.
func (c *Catalog) ListSeeds(ctx context.Context, kindFilter models.SeedKind) ([]*models.Seed, error) {
	query := `SELECT id, table_name, row_id, url FROM links WHERE table_name IN ('undergraduate', 'graduate')`
	args := []interface{}{}

	if kindFilter != "" {
		query += ` AND table_name = ?`
		args = append(args, string(kindFilter))
	}
	query += ` ORDER BY id`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("upstream: list seeds: %w", err)
	}
	defer rows.Close()

	var seeds []*models.Seed
	for rows.Next() {
		var s models.Seed
		var tableName string
		var rowID int64
		if err := rows.Scan(&s.SourceID, &tableName, &rowID, &s.URL); err != nil {
			return nil, fmt.Errorf("upstream: scan seed: %w", err)
		}
		s.Kind = models.SeedKind(tableName)
		s.RowID = fmt.Sprintf("%d", rowID)

		if school, ok, err := c.GetSchoolName(ctx, s.Kind, s.RowID); err == nil && ok {
			s.SchoolName = school
		}

		seeds = append(seeds, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return seeds, nil
}

// GetSchoolName looks up the `school` column in the per-kind table, mirroring
// get_school_name's dynamic `SELECT school FROM {table_name} WHERE id = ?`.
// table_name is restricted to the two known literal kinds so this never
// interpolates caller-controlled SQL.
func (c *Catalog) GetSchoolName(ctx context.Context, kind models.SeedKind, rowID string) (string, bool, error) {
	var table string
	switch kind {
	case models.SeedKindUndergraduate:
		table = "undergraduate"
	case models.SeedKindGraduate:
		table = "graduate"
	default:
		return "", false, nil
	}

	var school sql.NullString
	query := fmt.Sprintf(`SELECT school FROM %s WHERE id = ?`, table)
	err := c.db.QueryRowContext(ctx, query, rowID).Scan(&school)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("upstream: get school name: %w", err)
	}
	if !school.Valid || school.String == "" {
		return "", false, nil
	}

	return school.String, true, nil
}

// Close closes the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}
