// Package sqlguard validates and runs read-only SQL on behalf of the chat
// escape hatch.
//
// Validation is allowlist-shaped: the statement must be a single SELECT,
// and after string literals are blanked out no write or DDL keyword may
// appear anywhere. Every accepted statement gets a row cap appended unless
// it already carries one.
package sqlguard

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/dbsmedya/logops/internal/apperr"
	"github.com/dbsmedya/logops/internal/logger"
	"github.com/dbsmedya/logops/internal/tables"
	"github.com/dbsmedya/logops/internal/types"
)

// DefaultRowLimit caps result sets when the statement has no LIMIT.
const DefaultRowLimit = 100

// forbidden lists keywords that must not appear anywhere in the statement,
// matched on word boundaries after literals are stripped.
var forbidden = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "CREATE",
	"REPLACE", "MERGE", "GRANT", "REVOKE", "EXEC", "EXECUTE", "CALL",
	"BULK", "OPENROWSET", "OPENQUERY", "SHUTDOWN", "LOAD_FILE", "OUTFILE",
	"DUMPFILE", "LOCK", "UNLOCK", "SET", "USE", "INTO",
}

var (
	forbiddenPattern  = buildForbiddenPattern()
	sysProcPattern    = regexp.MustCompile(`(?i)\b(?:sp|xp)_\w+`)
	stringLitPattern  = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"`)
	commentPattern    = regexp.MustCompile(`--[^\n]*|#[^\n]*|/\*.*?\*/`)
	limitPattern      = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	leadingSelectOnly = regexp.MustCompile(`(?i)^\s*SELECT\b`)
)

func buildForbiddenPattern() *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(forbidden, "|") + `)\b`)
}

// Result carries the outcome of an executed query, including the statement
// actually sent after sanitation.
type Result struct {
	Columns      []string                 `json:"columns"`
	Rows         []map[string]interface{} `json:"rows"`
	RowCount     int                      `json:"row_count"`
	GeneratedSQL string                   `json:"generated_sql"`

	// RecordSet preserves column order for terminal rendering.
	RecordSet *types.RecordSet `json:"-"`
}

// Executor validates and runs guarded queries.
type Executor struct {
	rowLimit int
	log      *logger.Logger
}

// NewExecutor creates an executor with the default row cap.
func NewExecutor(log *logger.Logger) *Executor {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Executor{rowLimit: DefaultRowLimit, log: log}
}

// Sanitize validates the statement and returns the form that will run:
// trimmed, single, SELECT-only, with a LIMIT appended when absent.
func (e *Executor) Sanitize(query string) (string, error) {
	stmt := strings.TrimSpace(query)
	if stmt == "" {
		return "", apperr.SQLSafety("empty query")
	}

	// Trailing semicolons are harmless; interior ones mean a second
	// statement is hiding behind the first.
	stmt = strings.TrimRight(stmt, "; \t\n\r")
	if strings.Contains(stmt, ";") {
		return "", apperr.SQLSafety("multiple statements are not allowed")
	}

	// Scan a literal-free, comment-free copy so 'DROP' inside a string
	// cannot trip the check and keywords inside comments cannot hide.
	scanned := commentPattern.ReplaceAllString(stmt, " ")
	scanned = stringLitPattern.ReplaceAllString(scanned, "''")

	if !leadingSelectOnly.MatchString(scanned) {
		return "", apperr.SQLSafety("only SELECT statements are allowed")
	}
	if m := forbiddenPattern.FindString(scanned); m != "" {
		return "", apperr.SQLSafety("forbidden keyword %q", strings.ToUpper(m))
	}
	if m := sysProcPattern.FindString(scanned); m != "" {
		return "", apperr.SQLSafety("system procedure call %q is not allowed", m)
	}

	if !limitPattern.MatchString(scanned) {
		stmt = fmt.Sprintf("%s LIMIT %d", stmt, e.rowLimit)
	}
	return stmt, nil
}

// Execute sanitizes and runs the query, rewriting known 14-digit time
// columns into readable timestamps.
func (e *Executor) Execute(ctx context.Context, db *sql.DB, query string) (*Result, error) {
	stmt, err := e.Sanitize(query)
	if err != nil {
		e.log.Warnf("rejected query: %v", err)
		return nil, err
	}

	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	rs, err := types.Collect(rows)
	if err != nil {
		return nil, fmt.Errorf("collect query results: %w", err)
	}

	timeCols := tables.TimeColumns()
	rs.RewriteStrings(func(col string) bool { return timeCols[col] }, tables.FormatReadable)

	e.log.Infof("guarded query returned %d rows", rs.Len())
	return &Result{
		Columns:      rs.Columns,
		Rows:         rs.Maps(),
		RowCount:     rs.Len(),
		GeneratedSQL: stmt,
		RecordSet:    rs,
	}, nil
}
