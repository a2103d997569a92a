// Package config provides configuration structures and loading for logops.
package config

import "fmt"

// Config represents the complete application configuration.
type Config struct {
	Control   DatabaseConfig            `yaml:"control" mapstructure:"control" validate:"required"`
	Regions   map[string]DatabaseConfig `yaml:"regions" mapstructure:"regions"`
	LLM       LLMConfig                 `yaml:"llm" mapstructure:"llm"`
	Server    ServerConfig              `yaml:"server" mapstructure:"server"`
	Retention RetentionConfig           `yaml:"retention" mapstructure:"retention"`
	Logging   LoggingConfig             `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents a MySQL database connection configuration.
type DatabaseConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls" validate:"omitempty,oneof=disable preferred required"`
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// LLMConfig represents the chat-completion endpoint settings.
type LLMConfig struct {
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	Model          string  `yaml:"model" mapstructure:"model"`
	Temperature    float32 `yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds" validate:"omitempty,min=1"`
}

// ServerConfig represents the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Mode string `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=debug release test"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RetentionConfig represents the safety-gate and batch settings for
// archive and delete operations.
type RetentionConfig struct {
	ArchiveMinAgeDays   int `yaml:"archive_min_age_days" mapstructure:"archive_min_age_days" validate:"min=1"`
	DeleteMinAgeDays    int `yaml:"delete_min_age_days" mapstructure:"delete_min_age_days" validate:"min=1"`
	PreviewSampleRows   int `yaml:"preview_sample_rows" mapstructure:"preview_sample_rows" validate:"min=1"`
	DuplicateProbeBatch int `yaml:"duplicate_probe_batch" mapstructure:"duplicate_probe_batch" validate:"min=1"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=json text"`
	Output string `yaml:"output" mapstructure:"output"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Control: DatabaseConfig{
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		LLM: LLMConfig{
			Model:          "gpt-4o-mini",
			Temperature:    0.1,
			MaxTokens:      1000,
			TimeoutSeconds: 30,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Retention: RetentionConfig{
			ArchiveMinAgeDays:   7,
			DeleteMinAgeDays:    30,
			PreviewSampleRows:   5,
			DuplicateProbeBatch: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// RegionNames returns the statically configured region names.
func (c *Config) RegionNames() []string {
	names := make([]string, 0, len(c.Regions))
	for name := range c.Regions {
		names = append(names, name)
	}
	return names
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat string) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
}
