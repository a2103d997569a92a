// Package lifecycle implements the archive and delete engine for the
// managed log tables.
//
// Archiving copies filter-matched rows from a main table into its archive
// twin inside a single transaction, skipping rows whose natural key already
// exists in the archive, then removes the matched rows from the main table.
// Deleting purges aged rows from an archive table. Both paths are gated by
// retention rules and recorded in job_logs.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/logops/internal/apperr"
	"github.com/dbsmedya/logops/internal/sqlutil"
	"github.com/dbsmedya/logops/internal/tables"
)

// Comparison modes for the date upper bound.
const (
	// CompareOlderThan excludes the boundary instant (strict <).
	CompareOlderThan = "older_than"

	// CompareUpTo includes the boundary instant (<=). This is the default.
	CompareUpTo = "up_to"
)

// Filters describes which rows an operation touches. Date bounds use the
// fixed-width 14-digit column format; entity filters apply only to tables
// that carry the corresponding column.
type Filters struct {
	DateStart      string // inclusive lower bound, "" for none
	DateEnd        string // upper bound, "" for none
	DateComparison string // CompareOlderThan or CompareUpTo

	AgentName  string // dsiactivities only
	ServerName string
	UserID     string // dsitransactionlog only
	DeviceID   string // dsitransactionlog only

	Limit int // 0 means unlimited; applied oldest-first
}

// entityFilters maps filter fields to their column names.
func (f Filters) entityFilters() [][2]string {
	return [][2]string{
		{"AgentName", f.AgentName},
		{"ServerName", f.ServerName},
		{"UserID", f.UserID},
		{"DeviceID", f.DeviceID},
	}
}

// Validate checks date formats, the comparison mode and that every entity
// filter names a column the table actually has.
func (f Filters) Validate(t tables.Table) error {
	for _, bound := range []struct{ name, value string }{
		{"date_start", f.DateStart},
		{"date_end", f.DateEnd},
	} {
		if bound.value == "" {
			continue
		}
		if _, err := tables.DecodeTime(bound.value); err != nil {
			return apperr.Validation("%s %q is not a valid YYYYMMDDHHMMSS timestamp", bound.name, bound.value)
		}
	}

	if f.DateStart != "" && f.DateEnd != "" && f.DateStart > f.DateEnd {
		return apperr.Validation("date_start %q is after date_end %q", f.DateStart, f.DateEnd)
	}

	switch f.DateComparison {
	case "", CompareUpTo, CompareOlderThan:
	default:
		return apperr.Validation("unknown date_comparison %q", f.DateComparison)
	}

	for _, ef := range f.entityFilters() {
		column, value := ef[0], ef[1]
		if value == "" {
			continue
		}
		if !hasColumn(t, column) {
			return apperr.Validation("filter %s does not apply to table %s", column, t.Name)
		}
	}

	if f.Limit < 0 {
		return apperr.Validation("limit must not be negative")
	}

	return nil
}

// endOperator returns the SQL comparison for the date upper bound.
func (f Filters) endOperator() string {
	if f.DateComparison == CompareOlderThan {
		return "<"
	}
	return "<="
}

// whereClause renders the filter conditions against the given physical
// table name. Columns are qualified with the table name so the clause can
// sit next to correlated subqueries. Returns the clause without the WHERE
// keyword, or "" when no filter is set.
func (f Filters) whereClause(t tables.Table, physicalTable string) (string, []interface{}) {
	prefix := sqlutil.QuoteIdentifier(physicalTable) + "."

	var conds []string
	var args []interface{}

	timeCol := prefix + sqlutil.QuoteIdentifier(t.TimeColumn)
	if f.DateStart != "" {
		conds = append(conds, timeCol+" >= ?")
		args = append(args, f.DateStart)
	}
	if f.DateEnd != "" {
		conds = append(conds, fmt.Sprintf("%s %s ?", timeCol, f.endOperator()))
		args = append(args, f.DateEnd)
	}

	for _, ef := range f.entityFilters() {
		column, value := ef[0], ef[1]
		if value == "" || !hasColumn(t, column) {
			continue
		}
		conds = append(conds, prefix+sqlutil.QuoteIdentifier(column)+" = ?")
		args = append(args, value)
	}

	return strings.Join(conds, " AND "), args
}

// Describe renders the filters for job_logs reasons and chat cards.
func (f Filters) Describe() string {
	var parts []string
	if f.DateEnd != "" {
		op := "up to"
		if f.DateComparison == CompareOlderThan {
			op = "older than"
		}
		parts = append(parts, fmt.Sprintf("%s %s", op, tables.FormatReadable(f.DateEnd)))
	}
	if f.DateStart != "" {
		parts = append(parts, fmt.Sprintf("from %s", tables.FormatReadable(f.DateStart)))
	}
	for _, ef := range f.entityFilters() {
		if ef[1] != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", ef[0], ef[1]))
		}
	}
	if f.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit %d", f.Limit))
	}
	if len(parts) == 0 {
		return "no filters"
	}
	return strings.Join(parts, ", ")
}

// forTable drops the entity filters the named table does not carry, so
// one filter set can fan out across every managed table.
func (f Filters) forTable(tableName string) Filters {
	t, err := tables.LookupAny(tableName)
	if err != nil {
		return f
	}
	if !hasColumn(t, "AgentName") {
		f.AgentName = ""
	}
	if !hasColumn(t, "ServerName") {
		f.ServerName = ""
	}
	if !hasColumn(t, "UserID") {
		f.UserID = ""
	}
	if !hasColumn(t, "DeviceID") {
		f.DeviceID = ""
	}
	return f
}

// IsEmpty reports whether no filter condition is set at all.
func (f Filters) IsEmpty() bool {
	if f.DateStart != "" || f.DateEnd != "" {
		return false
	}
	for _, ef := range f.entityFilters() {
		if ef[1] != "" {
			return false
		}
	}
	return true
}

func hasColumn(t tables.Table, column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}
