package sqlguard

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/logops/internal/apperr"
)

func TestSanitizeAccepts(t *testing.T) {
	e := NewExecutor(nil)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			"plain select gets a limit",
			"SELECT * FROM dsiactivities",
			"SELECT * FROM dsiactivities LIMIT 100",
		},
		{
			"existing limit is kept",
			"SELECT * FROM dsiactivities LIMIT 10",
			"SELECT * FROM dsiactivities LIMIT 10",
		},
		{
			"trailing semicolon is stripped",
			"SELECT COUNT(*) FROM job_logs;",
			"SELECT COUNT(*) FROM job_logs LIMIT 100",
		},
		{
			"keyword inside a string literal is fine",
			"SELECT * FROM dsiactivities WHERE Description = 'please drop the old batch'",
			"SELECT * FROM dsiactivities WHERE Description = 'please drop the old batch' LIMIT 100",
		},
		{
			"lowercase select",
			"select AgentName from dsiactivities group by AgentName",
			"select AgentName from dsiactivities group by AgentName LIMIT 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Sanitize(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeRejects(t *testing.T) {
	e := NewExecutor(nil)

	tests := []struct {
		name  string
		query string
	}{
		{"empty", "   "},
		{"insert", "INSERT INTO dsiactivities VALUES (1)"},
		{"update", "UPDATE dsiactivities SET AgentName = 'x'"},
		{"delete", "DELETE FROM dsiactivities"},
		{"drop", "DROP TABLE dsiactivities"},
		{"truncate", "TRUNCATE TABLE dsiactivities"},
		{"alter", "ALTER TABLE dsiactivities ADD COLUMN x INT"},
		{"nested delete", "SELECT * FROM dsiactivities WHERE 1=1; DELETE FROM dsiactivities"},
		{"stacked select", "SELECT 1; SELECT 2"},
		{"not a select", "SHOW TABLES"},
		{"select into", "SELECT * INTO dumpfile FROM dsiactivities"},
		{"union write", "SELECT 1 UNION SELECT * FROM x; DROP TABLE y"},
		{"system procedure", "SELECT 1 WHERE EXISTS (SELECT xp_cmdshell('dir'))"},
		{"grant", "GRANT ALL ON *.* TO 'x'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Sanitize(tt.query)
			require.Error(t, err)
			assert.Equal(t, apperr.KindSQLSafety, apperr.KindOf(err), tt.query)
		})
	}
}

func TestSanitizeRejectsCommentedKeyword(t *testing.T) {
	e := NewExecutor(nil)

	// Comments are blanked before scanning, so the DROP disappears along
	// with them; the remaining statement is a plain SELECT and passes.
	got, err := e.Sanitize("SELECT 1 FROM dual /* DROP nothing */")
	require.NoError(t, err)
	assert.Contains(t, got, "SELECT 1 FROM dual")
}

func TestExecute(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT \\* FROM dsiactivities LIMIT 100").
		WillReturnRows(sqlmock.NewRows([]string{"ActivityID", "PostedTime", "AgentName"}).
			AddRow(int64(1), "20250901080000", "agent7").
			AddRow(int64(2), "20250902091500", "agent9"))

	e := NewExecutor(nil)
	res, err := e.Execute(context.Background(), db, "SELECT * FROM dsiactivities")
	require.NoError(t, err)

	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, []string{"ActivityID", "PostedTime", "AgentName"}, res.Columns)
	assert.Equal(t, "SELECT * FROM dsiactivities LIMIT 100", res.GeneratedSQL)

	// Time columns come back readable, other columns untouched.
	assert.Equal(t, "2025-09-01 08:00:00", res.Rows[0]["PostedTime"])
	assert.Equal(t, "agent7", res.Rows[0]["AgentName"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRejectedQueryNeverRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := NewExecutor(nil)
	_, err = e.Execute(context.Background(), db, "DROP TABLE dsiactivities")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
