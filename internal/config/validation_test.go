package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Control.Host = "control-db"
	cfg.Control.Database = "logops_control"
	cfg.Regions = map[string]DatabaseConfig{
		"US": {Host: "us-db", Port: 3306, Database: "dsilogs"},
	}
	return cfg
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateControlRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Control.Host = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "control.host")

	cfg = validConfig()
	cfg.Control.Database = ""
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "control.database")
}

func TestValidateRegionEntries(t *testing.T) {
	cfg := validConfig()
	cfg.Regions["EU"] = DatabaseConfig{Port: 3306}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "regions.EU.host")
}

func TestValidateRetentionOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.ArchiveMinAgeDays = 60
	cfg.Retention.DeleteMinAgeDays = 30
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "delete_min_age_days")
}

func TestValidateTagConstraints(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Server.Port = 99999
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Retention.ArchiveMinAgeDays = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.LLM.Temperature = 3.5
	assert.Error(t, cfg.Validate())
}
