// Package lock provides MySQL advisory locking for logops mutations.
//
// ARCHIVE and DELETE executions take a named lock per region and table so
// two confirmations for the same table cannot interleave, even across
// processes sharing the database.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another holder has the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if the lock cannot be acquired.
	TimeoutImmediate = 0

	// TimeoutShort fails fast when a concurrent mutation is detected.
	TimeoutShort = 1

	// TimeoutMedium waits out transient conflicts.
	TimeoutMedium = 10
)

// AdvisoryLock wraps MySQL's GET_LOCK()/RELEASE_LOCK() named lock. The
// lock is connection-scoped on the server, so one connection is checked
// out of the pool for the acquire/release lifetime; the lock auto-releases
// when that connection closes.
type AdvisoryLock struct {
	db       *sql.DB
	conn     *sql.Conn
	lockName string
	held     bool
}

// NewAdvisoryLock creates a lock with the given name. Nothing is acquired
// until AcquireLock is called.
func NewAdvisoryLock(db *sql.DB, lockName string) *AdvisoryLock {
	return &AdvisoryLock{
		db:       db,
		lockName: lockName,
		held:     false,
	}
}

// closeConn returns the pinned connection to the pool.
func (a *AdvisoryLock) closeConn() {
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

// AcquireLock attempts to acquire the lock, waiting up to timeoutSeconds.
// Returns true if acquired, false on timeout.
//
// GET_LOCK() returns 1 on success, 0 on timeout, NULL on error. It must
// run on the same connection as the eventual RELEASE_LOCK(); a pooled
// query could release on a connection that never held the lock.
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.held {
		return true, nil // Already holding the lock
	}

	if a.conn == nil {
		conn, err := a.db.Conn(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to check out lock connection: %w", err)
		}
		a.conn = conn
	}

	var result sql.NullInt64
	err := a.conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result)
	if err != nil {
		a.closeConn()
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}

	if !result.Valid {
		a.closeConn()
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.held = true
		return true, nil
	case 0:
		a.closeConn()
		return false, nil
	default:
		a.closeConn()
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// ReleaseLock releases the lock on the connection that acquired it and
// returns that connection to the pool. Returns true if released, false if
// the lock was not held by this instance.
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !a.held || a.conn == nil {
		a.held = false
		a.closeConn()
		return false, nil
	}
	defer a.closeConn()

	var result sql.NullInt64
	err := a.conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}

	if !result.Valid {
		a.held = false
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.held = false
		return true, nil
	case 0:
		a.held = false
		return false, nil
	default:
		return false, fmt.Errorf("unexpected RELEASE_LOCK return value: %d", result.Int64)
	}
}

// IsHeld reports whether this instance currently holds the lock.
func (a *AdvisoryLock) IsHeld() bool {
	return a.held
}

// LockName returns the lock's name.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// TryAcquire attempts to acquire the lock without waiting.
func (a *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	return a.AcquireLock(ctx, TimeoutImmediate)
}

// AcquireOrFail acquires with a short timeout, returning ErrLockTimeout
// when another mutation holds the lock.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another operation", ErrLockTimeout, a.lockName)
	}
	return nil
}

// TableLockName builds the lock name for a mutation on one table in one
// region: "logops:{region}:{table}". Unsafe characters are replaced with
// underscores.
func TableLockName(region, table string) string {
	sanitize := func(s string) string {
		return strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
				return r
			}
			return '_'
		}, s)
	}
	return fmt.Sprintf("logops:%s:%s", sanitize(region), sanitize(table))
}

// NewTableLock creates the advisory lock guarding mutations of one table
// in one region.
func NewTableLock(db *sql.DB, region, table string) *AdvisoryLock {
	return NewAdvisoryLock(db, TableLockName(region, table))
}

// WithLock runs fn while holding the lock, releasing it on every exit
// path including panic.
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another operation", ErrLockTimeout, a.lockName)
	}

	defer func() {
		// Release outside the caller's context so cancellation cannot leak
		// the lock; it would otherwise persist until the connection closes.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, releaseErr := a.ReleaseLock(releaseCtx); releaseErr != nil {
			_ = releaseErr // lock auto-releases when the connection closes
		}
	}()

	return fn()
}

// WithTableLock runs fn under the table mutation lock with the short
// fail-fast timeout.
func WithTableLock(ctx context.Context, db *sql.DB, region, table string, fn func() error) error {
	l := NewTableLock(db, region, table)
	return l.WithLock(ctx, TimeoutShort, fn)
}
