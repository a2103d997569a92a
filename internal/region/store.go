package region

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Config is one row of the region_config table in the control database.
type Config struct {
	ID               int64
	Region           string
	ConnectionString string
	IsActive         bool
	IsConnected      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastConnectedAt  sql.NullTime
	ConnectionNotes  string
}

// Store provides CRUD over region_config rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the control database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// List returns all configured regions, active first, alphabetical within.
func (s *Store) List(ctx context.Context) ([]Config, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, region, connection_string, is_active, is_connected,
		       created_at, updated_at, last_connected_at, COALESCE(connection_notes, '')
		FROM region_config
		ORDER BY is_active DESC, region ASC`)
	if err != nil {
		return nil, fmt.Errorf("list region configs: %w", err)
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		var c Config
		if err := rows.Scan(&c.ID, &c.Region, &c.ConnectionString, &c.IsActive, &c.IsConnected,
			&c.CreatedAt, &c.UpdatedAt, &c.LastConnectedAt, &c.ConnectionNotes); err != nil {
			return nil, fmt.Errorf("scan region config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// Get returns the config for one region.
func (s *Store) Get(ctx context.Context, region string) (*Config, error) {
	var c Config
	err := s.db.QueryRowContext(ctx, `
		SELECT id, region, connection_string, is_active, is_connected,
		       created_at, updated_at, last_connected_at, COALESCE(connection_notes, '')
		FROM region_config WHERE region = ?`, region).
		Scan(&c.ID, &c.Region, &c.ConnectionString, &c.IsActive, &c.IsConnected,
			&c.CreatedAt, &c.UpdatedAt, &c.LastConnectedAt, &c.ConnectionNotes)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Upsert inserts or updates a region configuration.
func (s *Store) Upsert(ctx context.Context, region, connectionString string, active bool, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO region_config (region, connection_string, is_active, connection_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
			connection_string = VALUES(connection_string),
			is_active = VALUES(is_active),
			connection_notes = VALUES(connection_notes),
			updated_at = NOW()`,
		region, connectionString, active, notes)
	if err != nil {
		return fmt.Errorf("upsert region config %s: %w", region, err)
	}
	return nil
}

// Delete removes a region configuration.
func (s *Store) Delete(ctx context.Context, region string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM region_config WHERE region = ?`, region)
	if err != nil {
		return fmt.Errorf("delete region config %s: %w", region, err)
	}
	return nil
}

// SetConnected records the connection state; a successful connect also
// stamps last_connected_at.
func (s *Store) SetConnected(ctx context.Context, region string, connected bool) error {
	var err error
	if connected {
		_, err = s.db.ExecContext(ctx, `
			UPDATE region_config
			SET is_connected = 1, last_connected_at = NOW(), updated_at = NOW()
			WHERE region = ?`, region)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE region_config
			SET is_connected = 0, updated_at = NOW()
			WHERE region = ?`, region)
	}
	if err != nil {
		return fmt.Errorf("update connection status for %s: %w", region, err)
	}
	return nil
}

// ActiveRegions returns the names of active regions.
func (s *Store) ActiveRegions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT region FROM region_config WHERE is_active = 1 ORDER BY region`)
	if err != nil {
		return nil, fmt.Errorf("list active regions: %w", err)
	}
	defer rows.Close()

	var regions []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}
