// Package region manages per-region database engines for logops.
package region

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/dbsmedya/logops/internal/apperr"
	"github.com/dbsmedya/logops/internal/config"
	"github.com/dbsmedya/logops/internal/logger"
	"github.com/dbsmedya/logops/internal/sqlutil"
	"github.com/dbsmedya/logops/internal/tables"
)

// fallbackRegions is used when neither the store nor the static
// configuration yields any region names.
var fallbackRegions = []string{"US", "EU", "APAC", "MEA"}

// HealthReport is the result of a region connection test.
type HealthReport struct {
	Healthy     bool             `json:"healthy"`
	Message     string           `json:"message"`
	TableCounts map[string]int64 `json:"table_counts"`
}

// Manager owns per-region engines. Lookups are read-mostly; connect and
// disconnect serialize on the mutex.
type Manager struct {
	store  *Store
	static map[string]config.DatabaseConfig
	log    *logger.Logger

	mu      sync.RWMutex
	engines map[string]*sql.DB

	// open is swappable so tests can inject sqlmock handles.
	open func(dsn string) (*sql.DB, error)
}

// NewManager creates a Manager. store may be nil when no control database
// is configured; static regions from the config file are used instead.
func NewManager(store *Store, cfg *config.Config, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Manager{
		store:   store,
		static:  cfg.Regions,
		log:     log,
		engines: make(map[string]*sql.DB),
		open: func(dsn string) (*sql.DB, error) {
			return sql.Open("mysql", dsn)
		},
	}
}

// AvailableRegions returns the known region names: the store's active rows
// when reachable, otherwise the static config, otherwise the fallback list.
func (m *Manager) AvailableRegions(ctx context.Context) []string {
	if m.store != nil {
		regions, err := m.store.ActiveRegions(ctx)
		if err == nil && len(regions) > 0 {
			return regions
		}
		if err != nil {
			m.log.Warnf("region store unavailable, falling back to static regions: %v", err)
		}
	}

	if len(m.static) > 0 {
		names := make([]string, 0, len(m.static))
		for name := range m.static {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}

	return append([]string(nil), fallbackRegions...)
}

// IsValid reports whether region is a known region name.
func (m *Manager) IsValid(ctx context.Context, region string) bool {
	for _, r := range m.AvailableRegions(ctx) {
		if r == region {
			return true
		}
	}
	return false
}

// DefaultRegion returns the first available region.
func (m *Manager) DefaultRegion(ctx context.Context) string {
	regions := m.AvailableRegions(ctx)
	if len(regions) == 0 {
		return fallbackRegions[0]
	}
	return regions[0]
}

// resolveDSN finds the connection string for a region: store row first,
// then static config.
func (m *Manager) resolveDSN(ctx context.Context, region string) (string, error) {
	if m.store != nil {
		cfg, err := m.store.Get(ctx, region)
		if err == nil && cfg.ConnectionString != "" {
			return cfg.ConnectionString, nil
		}
	}

	if db, ok := m.static[region]; ok {
		return BuildDSN(&db), nil
	}

	return "", apperr.New(apperr.KindInvalidRegion,
		"no connection configured for region %q", region)
}

// Connect opens a pooled engine for the region and verifies it with a
// trivial query. Idempotent: connecting an already-connected region is a
// no-op.
func (m *Manager) Connect(ctx context.Context, region string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.engines[region]; ok {
		return nil
	}

	dsn, err := m.resolveDSN(ctx, region)
	if err != nil {
		return err
	}

	db, err := m.connectWithRetry(ctx, dsn)
	if err != nil {
		m.markConnected(ctx, region, false)
		return apperr.Wrap(apperr.KindDBUnavailable, err, "failed to connect to region %s", region)
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		db.Close()
		m.markConnected(ctx, region, false)
		return apperr.Wrap(apperr.KindDBUnavailable, err, "connection test failed for region %s", region)
	}

	m.engines[region] = db
	m.markConnected(ctx, region, true)
	m.log.WithRegion(region).Info("connected to region")
	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context, dsn string) (*sql.DB, error) {
	var db *sql.DB
	var err error

	maxRetries := 3
	backoff := time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = m.open(dsn)
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(10 * time.Minute)
			if pingErr := db.PingContext(ctx); pingErr == nil {
				return db, nil
			} else {
				db.Close()
				err = pingErr
			}
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", maxRetries, err)
}

// Disconnect disposes the engine for a region and clears its entry.
func (m *Manager) Disconnect(ctx context.Context, region string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	db, ok := m.engines[region]
	if ok {
		if err := db.Close(); err != nil {
			m.log.WithRegion(region).Warnf("error closing engine: %v", err)
		}
		delete(m.engines, region)
	}

	m.markConnected(ctx, region, false)
	m.log.WithRegion(region).Info("disconnected from region")
	return nil
}

// Adopt registers an already-open engine for a region, replacing any
// existing one. The caller keeps ownership of the handle's lifecycle.
func (m *Manager) Adopt(region string, db *sql.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines[region] = db
}

// DB vends the engine for a region. Fails with NotConnected when the
// region has no live engine.
func (m *Manager) DB(region string) (*sql.DB, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	db, ok := m.engines[region]
	if !ok {
		return nil, apperr.NotConnected(region)
	}
	return db, nil
}

// IsConnected reports whether a region has a live engine.
func (m *Manager) IsConnected(region string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.engines[region]
	return ok
}

// ConnectionStatus returns region → connected for every available region.
func (m *Manager) ConnectionStatus(ctx context.Context) map[string]bool {
	status := make(map[string]bool)
	for _, region := range m.AvailableRegions(ctx) {
		status[region] = m.IsConnected(region)
	}
	return status
}

// TestConnection runs SELECT 1 plus count probes on the four managed
// tables. A missing archive table reports zero rather than an error.
func (m *Manager) TestConnection(ctx context.Context, region string) (*HealthReport, error) {
	db, err := m.DB(region)
	if err != nil {
		return &HealthReport{Healthy: false, Message: fmt.Sprintf("Not connected to %s", region)}, err
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return &HealthReport{Healthy: false, Message: fmt.Sprintf("Connection test failed: %v", err)},
			apperr.Wrap(apperr.KindDBUnavailable, err, "connection test failed for region %s", region)
	}

	counts := make(map[string]int64, 4)
	for _, table := range tables.AllNames() {
		var n int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", sqlutil.QuoteIdentifier(table))
		if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			// Archive tables may not exist yet on a fresh region.
			m.log.WithRegion(region).Warnf("could not count table %s: %v", table, err)
			counts[table] = 0
			continue
		}
		counts[table] = n
	}

	return &HealthReport{
		Healthy:     true,
		Message:     fmt.Sprintf("Connection to %s is healthy", region),
		TableCounts: counts,
	}, nil
}

// Close disposes every engine. Used at process shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for region, db := range m.engines {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close: %w", region, err))
		}
		delete(m.engines, region)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing engines: %v", errs)
	}
	return nil
}

// markConnected best-effort updates the store's connection flag.
func (m *Manager) markConnected(ctx context.Context, region string, connected bool) {
	if m.store == nil {
		return
	}
	if err := m.store.SetConnected(ctx, region, connected); err != nil {
		m.log.WithRegion(region).Warnf("could not update connection status: %v", err)
	}
}
