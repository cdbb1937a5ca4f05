// Package config provides configuration management for the watcher.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultRefreshInterval is the auto-refresh cadence when unset.
	defaultRefreshInterval = "5s"
	// defaultHistorySize bounds the retained differential history.
	defaultHistorySize = 50
	// defaultCacheTTL is the catalog lifetime when unset.
	defaultCacheTTL = "12h"
	// defaultLookbackDays is the mapping-scan window when unset.
	defaultLookbackDays = 10
	// defaultProviderTimeout is the per-request gateway timeout when unset.
	defaultProviderTimeout = "10s"
	// defaultDashboardPort serves the JSON API when unset.
	defaultDashboardPort = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Provider    ProviderConfig    `yaml:"provider"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Selection   SelectionConfig   `yaml:"selection"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ProviderConfig defines data gateway settings.
type ProviderConfig struct {
	Mode          string `yaml:"mode"` // live | mock
	BaseURL       string `yaml:"base_url"`
	Timeout       string `yaml:"timeout"`
	RatePerMinute int    `yaml:"rate_per_minute"` // 0 disables client-side pacing
}

// CatalogConfig tunes the instrument catalog cache.
type CatalogConfig struct {
	CacheTTL     string `yaml:"cache_ttl"`
	LookbackDays int    `yaml:"lookback_days"`
}

// RefreshConfig tunes the refresh cycle.
type RefreshConfig struct {
	Interval    string `yaml:"interval"`
	HistorySize int    `yaml:"history_size"`
	AutoStart   bool   `yaml:"auto_start"`
}

// SelectionConfig seeds the startup selection.
type SelectionConfig struct {
	Underlying string `yaml:"underlying"` // class name or display name
}

// DashboardConfig defines the HTTP API settings.
type DashboardConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// StorageConfig defines snapshot persistence. An empty path disables it.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Provider.Mode == "" {
		c.Provider.Mode = "mock"
	}
	if c.Provider.Timeout == "" {
		c.Provider.Timeout = defaultProviderTimeout
	}
	if c.Catalog.CacheTTL == "" {
		c.Catalog.CacheTTL = defaultCacheTTL
	}
	if c.Catalog.LookbackDays == 0 {
		c.Catalog.LookbackDays = defaultLookbackDays
	}
	if c.Refresh.Interval == "" {
		c.Refresh.Interval = defaultRefreshInterval
	}
	if c.Refresh.HistorySize == 0 {
		c.Refresh.HistorySize = defaultHistorySize
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Provider.Mode != "live" && c.Provider.Mode != "mock" {
		return fmt.Errorf("provider.mode must be 'live' or 'mock'")
	}
	if c.Provider.Mode == "live" && c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required in live mode")
	}
	if c.Provider.RatePerMinute < 0 {
		return fmt.Errorf("provider.rate_per_minute must be >= 0")
	}
	if _, err := time.ParseDuration(c.Provider.Timeout); err != nil {
		return fmt.Errorf("provider.timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Catalog.CacheTTL); err != nil {
		return fmt.Errorf("catalog.cache_ttl: %w", err)
	}
	if c.Catalog.LookbackDays < 0 {
		return fmt.Errorf("catalog.lookback_days must be >= 0")
	}
	if d, err := time.ParseDuration(c.Refresh.Interval); err != nil {
		return fmt.Errorf("refresh.interval: %w", err)
	} else if d < time.Second {
		return fmt.Errorf("refresh.interval must be at least 1s")
	}
	if c.Refresh.HistorySize < 0 {
		return fmt.Errorf("refresh.history_size must be >= 0")
	}
	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be a valid TCP port")
	}

	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}
	return nil
}

// ProviderTimeout returns the parsed gateway timeout.
func (c *Config) ProviderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Provider.Timeout)
	if err != nil {
		d, _ = time.ParseDuration(defaultProviderTimeout)
	}
	return d
}

// CatalogTTL returns the parsed catalog cache lifetime.
func (c *Config) CatalogTTL() time.Duration {
	d, err := time.ParseDuration(c.Catalog.CacheTTL)
	if err != nil {
		d, _ = time.ParseDuration(defaultCacheTTL)
	}
	return d
}

// RefreshInterval returns the parsed auto-refresh cadence.
func (c *Config) RefreshInterval() time.Duration {
	d, err := time.ParseDuration(c.Refresh.Interval)
	if err != nil {
		d, _ = time.ParseDuration(defaultRefreshInterval)
	}
	return d
}
