package region

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeColumns() []string {
	return []string{"id", "region", "connection_string", "is_active", "is_connected",
		"created_at", "updated_at", "last_connected_at", "connection_notes"}
}

func TestStoreList(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("(?s)SELECT .+ FROM region_config").WillReturnRows(
		sqlmock.NewRows(storeColumns()).
			AddRow(1, "APAC", "logops:pw@tcp(apac:3306)/dsilogs", true, true, now, now, now, "").
			AddRow(2, "EU", "logops:pw@tcp(eu:3306)/dsilogs", true, false, now, now, nil, "maintenance"),
	)

	store := NewStore(db)
	configs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, configs, 2)

	assert.Equal(t, "APAC", configs[0].Region)
	assert.True(t, configs[0].IsConnected)
	assert.True(t, configs[0].LastConnectedAt.Valid)

	assert.Equal(t, "EU", configs[1].Region)
	assert.False(t, configs[1].LastConnectedAt.Valid)
	assert.Equal(t, "maintenance", configs[1].ConnectionNotes)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGet(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("(?s)SELECT .+ FROM region_config WHERE region = ?").
		WithArgs("US").
		WillReturnRows(sqlmock.NewRows(storeColumns()).
			AddRow(3, "US", "logops:pw@tcp(us:3306)/dsilogs", true, false, now, now, nil, ""))

	store := NewStore(db)
	cfg, err := store.Get(context.Background(), "US")
	require.NoError(t, err)
	assert.Equal(t, "logops:pw@tcp(us:3306)/dsilogs", cfg.ConnectionString)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsert(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO region_config").
		WithArgs("MEA", "logops:pw@tcp(mea:3306)/dsilogs", true, "").
		WillReturnResult(sqlmock.NewResult(4, 1))

	store := NewStore(db)
	require.NoError(t, store.Upsert(context.Background(), "MEA", "logops:pw@tcp(mea:3306)/dsilogs", true, ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSetConnected(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	// Connecting stamps last_connected_at; disconnecting does not.
	mock.ExpectExec("UPDATE region_config\\s+SET is_connected = 1, last_connected_at = NOW\\(\\)").
		WithArgs("EU").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE region_config\\s+SET is_connected = 0").
		WithArgs("EU").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db)
	require.NoError(t, store.SetConnected(context.Background(), "EU", true))
	require.NoError(t, store.SetConnected(context.Background(), "EU", false))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreActiveRegions(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT region FROM region_config WHERE is_active = 1").
		WillReturnRows(sqlmock.NewRows([]string{"region"}).AddRow("APAC").AddRow("EU"))

	store := NewStore(db)
	regions, err := store.ActiveRegions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"APAC", "EU"}, regions)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDelete(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM region_config WHERE region = ?").
		WithArgs("US").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db)
	require.NoError(t, store.Delete(context.Background(), "US"))
	require.NoError(t, mock.ExpectationsWereMet())
}
