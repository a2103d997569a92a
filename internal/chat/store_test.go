package chat

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/logops/internal/auth"
	"github.com/dbsmedya/logops/internal/joblog"
	"github.com/dbsmedya/logops/internal/tables"
)

func newStoreMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestRecord(t *testing.T) {
	s, mock := newStoreMock(t)

	mock.ExpectExec("INSERT INTO chatops_log").
		WithArgs("s1", "assistant", auth.RoleAdmin, "US", "Archived 5 records.", CardSuccess,
			"archive_records", tables.Activities, `{"date_expression":"older than 1 year"}`,
			int64(5), joblog.StatusSuccess, "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Record(context.Background(), TurnRecord{
		SessionID:       "s1",
		TurnRole:        "assistant",
		UserRole:        auth.RoleAdmin,
		Region:          "US",
		Message:         "Archived 5 records.",
		CardType:        CardSuccess,
		Tool:            "archive_records",
		TableName:       tables.Activities,
		Filters:         `{"date_expression":"older than 1 year"}`,
		RecordsAffected: 5,
		Status:          joblog.StatusSuccess,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryChronological(t *testing.T) {
	s, mock := newStoreMock(t)

	// The query returns newest first; callers get oldest first.
	mock.ExpectQuery("SELECT turn_role, message").
		WithArgs("s9", historyDepth).
		WillReturnRows(sqlmock.NewRows([]string{"turn_role", "message"}).
			AddRow("assistant", "third").
			AddRow("user", "second").
			AddRow("user", "first"))

	turns, err := s.History(context.Background(), "s9")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "third", turns[2].Content)
}

func TestLastOperation(t *testing.T) {
	s, mock := newStoreMock(t)

	mock.ExpectQuery("SELECT table_name").
		WithArgs("s9").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "filters_applied", "tool"}).
			AddRow(tables.TransactionLog, `{"date_expression":"older than 3 months"}`, "get_table_stats"))

	c, err := s.LastOperation(context.Background(), "s9")
	require.NoError(t, err)
	assert.Equal(t, tables.TransactionLog, c.Table)
	assert.Equal(t, `{"date_expression":"older than 3 months"}`, c.Filters)
	assert.Equal(t, "get_table_stats", c.Tool)
}

func TestLastOperationEmptySession(t *testing.T) {
	s, mock := newStoreMock(t)

	mock.ExpectQuery("SELECT table_name").
		WithArgs("fresh").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "filters_applied", "tool"}))

	c, err := s.LastOperation(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Empty(t, c.Table)
	assert.Empty(t, c.Tool)
}
