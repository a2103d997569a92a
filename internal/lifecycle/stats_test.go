package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/logops/internal/apperr"
	"github.com/dbsmedya/logops/internal/tables"
)

func TestStats(t *testing.T) {
	e := newTestEngine()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("(?s)SELECT COUNT\\(\\*\\), MIN\\(.PostedTime.\\), MAX\\(.PostedTime.\\) FROM .dsiactivities.").
		WillReturnRows(sqlmock.NewRows([]string{"count", "min", "max"}).
			AddRow(125000, "20250101000000", "20251015115959"))

	s, err := e.Stats(context.Background(), db, tables.Activities, Filters{})
	require.NoError(t, err)
	assert.Equal(t, int64(125000), s.RowCount)
	assert.Equal(t, "2025-01-01 00:00:00", s.OldestTime)
	assert.Equal(t, "2025-10-15 11:59:59", s.NewestTime)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsWithDateFilter(t *testing.T) {
	e := newTestEngine()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	// The date bound scopes the count, min and max.
	mock.ExpectQuery("(?s)SELECT COUNT\\(\\*\\), MIN\\(.PostedTime.\\), MAX\\(.PostedTime.\\) FROM .dsiactivities. WHERE .dsiactivities...PostedTime. < \\?").
		WithArgs("20250715000000").
		WillReturnRows(sqlmock.NewRows([]string{"count", "min", "max"}).
			AddRow(4200, "20250101000000", "20250714235959"))

	s, err := e.Stats(context.Background(), db, tables.Activities,
		Filters{DateEnd: "20250715000000", DateComparison: CompareOlderThan})
	require.NoError(t, err)
	assert.Equal(t, int64(4200), s.RowCount)
	assert.Equal(t, "2025-07-14 23:59:59", s.NewestTime)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsRejectsWrongEntityFilter(t *testing.T) {
	e := newTestEngine()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// UserID is a transaction-log column, not an activities column.
	_, err = e.Stats(context.Background(), db, tables.Activities, Filters{UserID: "u1"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestStatsEmptyTable(t *testing.T) {
	e := newTestEngine()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "min", "max"}).AddRow(0, nil, nil))

	s, err := e.Stats(context.Background(), db, tables.TransactionArchive, Filters{})
	require.NoError(t, err)
	assert.Zero(t, s.RowCount)
	assert.Empty(t, s.OldestTime)
	assert.Empty(t, s.NewestTime)
}

func TestStatsUnknownTable(t *testing.T) {
	e := newTestEngine()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = e.Stats(context.Background(), db, "users", Filters{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAllStats(t *testing.T) {
	e := newTestEngine()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"c", "mn", "mx"}).AddRow(10, "20250101000000", "20250201000000"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"c", "mn", "mx"}).AddRow(20, "20250101000000", "20250201000000"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnError(errors.New("table missing"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"c", "mn", "mx"}).AddRow(40, nil, nil))

	all, err := e.AllStats(context.Background(), db, Filters{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	assert.Equal(t, tables.Activities, all[0].Table)
	assert.Equal(t, int64(10), all[0].RowCount)
	// The failing table still appears, with zeroes.
	assert.Equal(t, tables.ActivitiesArchive, all[2].Table)
	assert.Zero(t, all[2].RowCount)
	assert.Equal(t, int64(40), all[3].RowCount)
}

func TestAllStatsEntityFilterPerTable(t *testing.T) {
	e := newTestEngine()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	// AgentName scopes the two activities tables; the transaction tables
	// have no such column and stay unfiltered.
	mock.ExpectQuery("(?s)SELECT COUNT.+FROM .dsiactivities. WHERE .dsiactivities...AgentName. = \\?").
		WithArgs("agent-a").
		WillReturnRows(sqlmock.NewRows([]string{"c", "mn", "mx"}).AddRow(3, nil, nil))
	mock.ExpectQuery("(?s)SELECT COUNT.+FROM .dsitransactionlog.").
		WillReturnRows(sqlmock.NewRows([]string{"c", "mn", "mx"}).AddRow(7, nil, nil))
	mock.ExpectQuery("(?s)SELECT COUNT.+FROM .dsiactivitiesarchive. WHERE .dsiactivitiesarchive...AgentName. = \\?").
		WithArgs("agent-a").
		WillReturnRows(sqlmock.NewRows([]string{"c", "mn", "mx"}).AddRow(1, nil, nil))
	mock.ExpectQuery("(?s)SELECT COUNT.+FROM .dsitransactionlogarchive.").
		WillReturnRows(sqlmock.NewRows([]string{"c", "mn", "mx"}).AddRow(2, nil, nil))

	all, err := e.AllStats(context.Background(), db, Filters{AgentName: "agent-a"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, int64(3), all[0].RowCount)
	assert.Equal(t, int64(7), all[1].RowCount)

	require.NoError(t, mock.ExpectationsWereMet())
}
