// Package types contains shared result types used across multiple packages
// to avoid import cycles.
package types

import (
	"database/sql"

	"github.com/elliotchance/orderedmap/v2"
)

// RecordSet holds the result of a read query with column order preserved.
type RecordSet struct {
	Columns []string
	Rows    [][]interface{}
}

// Collect drains rows into a RecordSet, normalizing driver byte slices to
// strings. The caller retains ownership of rows and must close it.
func Collect(rows *sql.Rows) (*RecordSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &RecordSet{Columns: columns}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Len returns the number of rows.
func (rs *RecordSet) Len() int {
	return len(rs.Rows)
}

// Record returns row i as an ordered column→value map, preserving the
// result set's column order for rendering.
func (rs *RecordSet) Record(i int) *orderedmap.OrderedMap[string, interface{}] {
	m := orderedmap.NewOrderedMap[string, interface{}]()
	for c, col := range rs.Columns {
		m.Set(col, rs.Rows[i][c])
	}
	return m
}

// Maps returns all rows as plain maps, for JSON payloads where key order
// does not matter.
func (rs *RecordSet) Maps() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rs.Rows))
	for i := range rs.Rows {
		m := make(map[string]interface{}, len(rs.Columns))
		for c, col := range rs.Columns {
			m[col] = rs.Rows[i][c]
		}
		out = append(out, m)
	}
	return out
}

// RewriteStrings applies fn to every string cell whose column satisfies the
// predicate. Used to render fixed-width timestamps human-readable.
func (rs *RecordSet) RewriteStrings(columnMatch func(string) bool, fn func(string) string) {
	for c, col := range rs.Columns {
		if !columnMatch(col) {
			continue
		}
		for i := range rs.Rows {
			if s, ok := rs.Rows[i][c].(string); ok {
				rs.Rows[i][c] = fn(s)
			}
		}
	}
}
