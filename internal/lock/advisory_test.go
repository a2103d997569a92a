package lock

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableLockName(t *testing.T) {
	assert.Equal(t, "logops:US:dsiactivities", TableLockName("US", "dsiactivities"))
	assert.Equal(t, "logops:APAC:dsitransactionlogarchive", TableLockName("APAC", "dsitransactionlogarchive"))

	// Unsafe characters collapse to underscores.
	assert.Equal(t, "logops:EU_1:bad_table_name", TableLockName("EU 1", "bad;table name"))
}

func TestAcquireAndRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT GET_LOCK").
		WithArgs("logops:US:dsiactivities", TimeoutShort).
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(1))
	mock.ExpectQuery("SELECT RELEASE_LOCK").
		WithArgs("logops:US:dsiactivities").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(1))

	l := NewTableLock(db, "US", "dsiactivities")
	assert.False(t, l.IsHeld())

	acquired, err := l.AcquireLock(context.Background(), TimeoutShort)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, l.IsHeld())

	// Re-acquiring while held is a no-op.
	acquired, err = l.AcquireLock(context.Background(), TimeoutShort)
	require.NoError(t, err)
	assert.True(t, acquired)

	released, err := l.ReleaseLock(context.Background())
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, l.IsHeld())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireReleaseReacquire(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Two full cycles: release returns the pinned connection to the pool,
	// and the next acquire checks out a fresh one.
	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT GET_LOCK").
			WithArgs("logops:US:dsiactivities", TimeoutShort).
			WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(1))
		mock.ExpectQuery("SELECT RELEASE_LOCK").
			WithArgs("logops:US:dsiactivities").
			WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(1))
	}

	l := NewTableLock(db, "US", "dsiactivities")
	for i := 0; i < 2; i++ {
		acquired, err := l.AcquireLock(context.Background(), TimeoutShort)
		require.NoError(t, err)
		assert.True(t, acquired)
		assert.True(t, l.IsHeld())

		released, err := l.ReleaseLock(context.Background())
		require.NoError(t, err)
		assert.True(t, released)
		assert.False(t, l.IsHeld())
	}

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireTimeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT GET_LOCK").
		WithArgs("logops:EU:dsitransactionlog", TimeoutShort).
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(0))

	l := NewTableLock(db, "EU", "dsitransactionlog")
	err = l.AcquireOrFail(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))
	assert.False(t, l.IsHeld())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireNullResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT GET_LOCK").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(nil))

	l := NewAdvisoryLock(db, "logops:US:dsiactivities")
	acquired, err := l.AcquireLock(context.Background(), TimeoutShort)
	assert.Error(t, err)
	assert.False(t, acquired)
}

func TestReleaseNotHeld(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewAdvisoryLock(db, "logops:US:dsiactivities")
	released, err := l.ReleaseLock(context.Background())
	require.NoError(t, err)
	assert.False(t, released)
}

func TestWithTableLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT GET_LOCK").
		WithArgs("logops:US:dsiactivities", TimeoutShort).
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(1))
	mock.ExpectQuery("SELECT RELEASE_LOCK").
		WithArgs("logops:US:dsiactivities").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(1))

	ran := false
	err = WithTableLock(context.Background(), db, "US", "dsiactivities", func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithLockReleasesOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT GET_LOCK").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(1))
	mock.ExpectQuery("SELECT RELEASE_LOCK").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(1))

	boom := errors.New("boom")
	l := NewAdvisoryLock(db, "logops:US:dsiactivities")
	err = l.WithLock(context.Background(), TimeoutShort, func() error { return boom })
	assert.True(t, errors.Is(err, boom))
	assert.False(t, l.IsHeld())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithLockHeldByAnother(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT GET_LOCK").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(0))

	l := NewAdvisoryLock(db, "logops:US:dsiactivities")
	err = l.WithLock(context.Background(), TimeoutShort, func() error {
		t.Fatal("fn must not run when the lock is held elsewhere")
		return nil
	})
	assert.True(t, errors.Is(err, ErrLockTimeout))
}
