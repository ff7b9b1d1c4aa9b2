package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the Hibernate server process.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite database path (default ~/.hibernate/hibernate.db, ":memory:" for testing)

	Engine EngineConfig `yaml:"engine"`
}

// EngineConfig holds settings for the schedule execution engine.
type EngineConfig struct {
	// TickInterval is how often the engine evaluates schedules. Schedule
	// times have minute resolution, so the interval must divide a minute
	// evenly for exact matching to sample every minute once.
	TickInterval Duration `yaml:"tick_interval"`

	// CallTimeout bounds each external cloud call (credential assumption,
	// instance action) so one stalled call cannot starve the schedule set.
	CallTimeout Duration `yaml:"call_timeout"`

	// SessionDuration is the lifetime requested for delegated credentials.
	SessionDuration Duration `yaml:"session_duration"`

	// Timezone is the IANA zone schedule times are evaluated in
	// (e.g. "Asia/Kolkata"). Empty means the host's local zone. All
	// schedules share this one zone.
	Timezone string `yaml:"timezone"`

	// EC2RateLimit caps outbound EC2 API calls per second (0 = unlimited).
	EC2RateLimit float64 `yaml:"ec2_rate_limit"`

	// Disabled turns the background engine off; the API keeps serving.
	Disabled bool `yaml:"disabled"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Engine:    DefaultEngineConfig(),
	}
}

// DefaultEngineConfig returns the engine's design-value defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickInterval:    Duration(time.Minute),
		CallTimeout:     Duration(10 * time.Second),
		SessionDuration: Duration(time.Hour),
		EC2RateLimit:    10,
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Engine.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects engine settings that would break exact-minute matching.
func (c EngineConfig) Validate() error {
	tick := c.TickInterval.Std()
	if tick <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", tick)
	}
	// Schedule times match by exact minute, so the tick must sample every
	// minute: an interval like 90s would silently skip minutes.
	if time.Minute%tick != 0 {
		return fmt.Errorf("tick_interval %s must divide a minute evenly", tick)
	}
	if c.CallTimeout.Std() <= 0 {
		return fmt.Errorf("call_timeout must be positive, got %s", c.CallTimeout.Std())
	}
	return nil
}

// Location resolves the engine's evaluation time zone.
func (c EngineConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
