// Package statsapi exposes the listings engine over HTTP for the statistics
// UI and owns the service configuration.
package statsapi

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Listen   string     `yaml:"listen"`
	DBPath   string     `yaml:"db_path"`
	LogLevel string     `yaml:"log_level"` // debug | info | warn | error
	Feed     FeedConfig `yaml:"feed"`
}

// FeedConfig configures the scraper feed the ingestion runner pulls from.
type FeedConfig struct {
	URL      string   `yaml:"url"`
	Timeout  Duration `yaml:"timeout"`
	Debounce Duration `yaml:"debounce"`
}

// Duration is a time.Duration that unmarshals from YAML as either a duration
// string ("500ms") or integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":8084",
		DBPath:   "listings.db",
		LogLevel: "info",
		Feed: FeedConfig{
			Timeout:  Duration(30 * time.Second),
			Debounce: Duration(2 * time.Second),
		},
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("unsupported log_level %q", c.LogLevel)
	}
	if c.Feed.Timeout < 0 {
		return fmt.Errorf("feed.timeout must be >= 0")
	}
	if c.Feed.Debounce < 0 {
		return fmt.Errorf("feed.debounce must be >= 0")
	}
	return nil
}
