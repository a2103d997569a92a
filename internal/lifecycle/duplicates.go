package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dbsmedya/logops/internal/sqlutil"
	"github.com/dbsmedya/logops/internal/tables"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// recordKey is the natural-key value tuple of one candidate row.
type recordKey []interface{}

// fingerprint renders the key for set membership.
func (k recordKey) fingerprint() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x1f")
}

// candidateKeys returns the natural keys of the rows the filter matches,
// in archive order. Rows with a NULL key column are excluded: they cannot
// be deduplicated and never move to the archive.
func candidateKeys(ctx context.Context, q querier, t tables.Table, f Filters) ([]recordKey, error) {
	keyCols := make([]string, len(t.DuplicateKey))
	for i, c := range t.DuplicateKey {
		keyCols[i] = sqlutil.QuoteIdentifier(t.Name) + "." + sqlutil.QuoteIdentifier(c)
	}

	where, args := f.whereClause(t, t.Name)
	conds := make([]string, 0, 2)
	if where != "" {
		conds = append(conds, where)
	}
	for _, col := range keyCols {
		conds = append(conds, col+" IS NOT NULL")
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s.%s ASC",
		strings.Join(keyCols, ", "),
		sqlutil.QuoteIdentifier(t.Name),
		strings.Join(conds, " AND "),
		sqlutil.QuoteIdentifier(t.Name),
		sqlutil.QuoteIdentifier(t.TimeColumn),
	)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select candidate keys: %w", err)
	}
	defer rows.Close()

	var keys []recordKey
	for rows.Next() {
		values := make([]interface{}, len(t.DuplicateKey))
		ptrs := make([]interface{}, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan candidate key: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		keys = append(keys, recordKey(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate keys: %w", err)
	}
	return keys, nil
}

// keyCondition renders the match condition for one key against the given
// physical table, appending the key values to args.
func keyCondition(t tables.Table, physicalTable string, key recordKey, args *[]interface{}) string {
	conds := make([]string, len(t.DuplicateKey))
	for i, col := range t.DuplicateKey {
		conds[i] = fmt.Sprintf("%s.%s = ?",
			sqlutil.QuoteIdentifier(physicalTable), sqlutil.QuoteIdentifier(col))
		*args = append(*args, key[i])
	}
	if len(conds) == 1 {
		return conds[0]
	}
	return "(" + strings.Join(conds, " AND ") + ")"
}

// probeExisting checks which candidate keys already exist in the archive,
// batching the probes so the IN lists stay bounded. Returns the set of
// existing key fingerprints.
func probeExisting(ctx context.Context, q querier, t tables.Table, keys []recordKey, batchSize int) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(keys) == 0 {
		return existing, nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	for start := 0; start < len(keys); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("duplicate probe interrupted: %w", err)
		}

		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		var query string
		var args []interface{}

		if len(t.DuplicateKey) == 1 {
			placeholders := make([]string, len(batch))
			for i, key := range batch {
				placeholders[i] = "?"
				args = append(args, key[0])
			}
			query = fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
				sqlutil.QuoteIdentifier(t.DuplicateKey[0]),
				sqlutil.QuoteIdentifier(t.ArchiveName),
				sqlutil.QuoteIdentifier(t.DuplicateKey[0]),
				strings.Join(placeholders, ", "))
		} else {
			conds := make([]string, len(batch))
			for i, key := range batch {
				conds[i] = keyCondition(t, t.ArchiveName, key, &args)
			}
			cols := make([]string, len(t.DuplicateKey))
			for i, c := range t.DuplicateKey {
				cols[i] = sqlutil.QuoteIdentifier(c)
			}
			query = fmt.Sprintf("SELECT %s FROM %s WHERE %s",
				strings.Join(cols, ", "),
				sqlutil.QuoteIdentifier(t.ArchiveName),
				strings.Join(conds, " OR "))
		}

		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("probe archive for duplicates: %w", err)
		}

		for rows.Next() {
			values := make([]interface{}, len(t.DuplicateKey))
			ptrs := make([]interface{}, len(values))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan duplicate key: %w", err)
			}
			for i, v := range values {
				if b, ok := v.([]byte); ok {
					values[i] = string(b)
				}
			}
			existing[recordKey(values).fingerprint()] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate duplicate keys: %w", err)
		}
		rows.Close()
	}

	return existing, nil
}

// insertRowByRow is the fallback path when the bulk insert hits a duplicate
// key despite the probe (a row landed in the archive between probe and
// insert). Each candidate is re-checked and inserted individually, so one
// late duplicate cannot abort the whole batch.
func insertRowByRow(ctx context.Context, tx querier, t tables.Table, keys []recordKey, existing map[string]bool) (inserted int64, skipped int64, err error) {
	columnList := quotedColumnList(t.Columns)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return inserted, skipped, fmt.Errorf("row-by-row insert interrupted: %w", err)
		}
		if existing[key.fingerprint()] {
			skipped++
			continue
		}

		var probeArgs []interface{}
		cond := keyCondition(t, t.ArchiveName, key, &probeArgs)
		var count int64
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", sqlutil.QuoteIdentifier(t.ArchiveName), cond),
			probeArgs...).Scan(&count)
		if err != nil {
			return inserted, skipped, fmt.Errorf("re-check archive for key: %w", err)
		}
		if count > 0 {
			skipped++
			continue
		}

		var insertArgs []interface{}
		mainCond := keyCondition(t, t.Name, key, &insertArgs)
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE %s",
				sqlutil.QuoteIdentifier(t.ArchiveName), columnList, columnList,
				sqlutil.QuoteIdentifier(t.Name), mainCond),
			insertArgs...)
		if err != nil {
			return inserted, skipped, fmt.Errorf("insert single row: %w", err)
		}
		affected, _ := res.RowsAffected()
		inserted += affected
	}

	return inserted, skipped, nil
}

func quotedColumnList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqlutil.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}
