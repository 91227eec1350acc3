// Package config loads the engine's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to zero config values.
const (
	DefaultMonitorInterval  = 5 * time.Minute
	DefaultAggregateCron    = "0 2 * * *"
	DefaultWarningThreshold = 20.0
)

// Config is the root configuration document.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Billing  BillingConfig  `yaml:"billing"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// DSN is a PostgreSQL connection string or a SQLite file path.
	DSN string `yaml:"dsn"`
}

// LogConfig tunes log output and rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
	Compress   bool   `yaml:"compress"`
}

// BillingConfig tunes the engine's schedulers and pool defaults.
type BillingConfig struct {
	// MonitorInterval is the pool sweep period.
	MonitorInterval time.Duration `yaml:"monitor-interval"`
	// AggregateCron schedules the nightly rollup, standard cron syntax.
	AggregateCron string `yaml:"aggregate-cron"`
	// WarningThreshold is the default low-balance percent for new pools.
	WarningThreshold float64 `yaml:"warning-threshold"`
}

// Load reads and parses the config file at path, applying defaults to
// missing values.
func Load(path string) (*Config, error) {
	raw, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	var cfg Config
	if errUnmarshal := yaml.Unmarshal(raw, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	cfg.applyDefaults()

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("config: database.dsn is required")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Billing.MonitorInterval <= 0 {
		c.Billing.MonitorInterval = DefaultMonitorInterval
	}
	if c.Billing.AggregateCron == "" {
		c.Billing.AggregateCron = DefaultAggregateCron
	}
	if c.Billing.WarningThreshold <= 0 {
		c.Billing.WarningThreshold = DefaultWarningThreshold
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 10
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 30
	}
}
