package lifecycle

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/logops/internal/apperr"
	"github.com/dbsmedya/logops/internal/sqlutil"
	"github.com/dbsmedya/logops/internal/tables"
)

// TableStats summarizes one table's size and time span.
type TableStats struct {
	Table      string `json:"table"`
	RowCount   int64  `json:"row_count"`
	OldestTime string `json:"oldest_time,omitempty"`
	NewestTime string `json:"newest_time,omitempty"`
}

// Stats returns row count and time span for one table, main or archive,
// scoped by the filters. Stats never mutate, so no retention gate applies.
func (e *Engine) Stats(ctx context.Context, db *sql.DB, tableName string, f Filters) (*TableStats, error) {
	t, err := tables.LookupAny(tableName)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if err := f.Validate(t); err != nil {
		return nil, err
	}

	table := sqlutil.QuoteIdentifier(tableName)
	timeCol := sqlutil.QuoteIdentifier(t.TimeColumn)

	query := fmt.Sprintf("SELECT COUNT(*), MIN(%s), MAX(%s) FROM %s", timeCol, timeCol, table)
	where, args := f.whereClause(t, tableName)
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	var oldest, newest sql.NullString
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count, &oldest, &newest); err != nil {
		return nil, fmt.Errorf("stats for %s: %w", tableName, err)
	}

	stats := &TableStats{Table: tableName, RowCount: count}
	if oldest.Valid {
		stats.OldestTime = tables.FormatReadable(oldest.String)
	}
	if newest.Valid {
		stats.NewestTime = tables.FormatReadable(newest.String)
	}
	return stats, nil
}

// AllStats returns stats for every managed table, mains first. Tables that
// fail to answer (e.g. a missing archive twin) report a zero row count.
// Entity filters are skipped per table when the column does not apply.
func (e *Engine) AllStats(ctx context.Context, db *sql.DB, f Filters) ([]*TableStats, error) {
	out := make([]*TableStats, 0, len(tables.AllNames()))
	for _, name := range tables.AllNames() {
		s, err := e.Stats(ctx, db, name, f.forTable(name))
		if err != nil {
			e.log.WithTable(name).Warnf("stats query failed: %v", err)
			s = &TableStats{Table: name}
		}
		out = append(out, s)
	}
	return out, nil
}
