package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment variables (optionally from a .env file) are
// applied on top of the file values by ApplyEnv.

const (
	defaultListen      = "127.0.0.1:8080"
	defaultAPIEndpoint = "http://127.0.0.1:8000"
	defaultAPITimeout  = 15 * time.Second
	defaultTimezone    = "Local"
	defaultWeekStart   = "monday"
	defaultLogLevel    = "info"
	defaultChannel     = "evsched:notifications"
)

// APIConfig describes the remote events backend.
type APIConfig struct {
	// Endpoint is the base URL; /events, /new_event, ... are appended to it.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Timeout bounds every single remote call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ConflictConfig tunes conflict detection.
type ConflictConfig struct {
	// ExcludeEditedEvent removes the event being edited from the comparison
	// set on update. Off by default: every update of an event is then checked
	// against its own stored interval as well.
	ExcludeEditedEvent bool `yaml:"exclude_edited_event" json:"exclude_edited_event"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// RedisConfig enables fan-out of controller notifications over Redis pub/sub.
type RedisConfig struct {
	Addr    string `yaml:"addr" json:"addr"`
	DB      int    `yaml:"db" json:"db"`
	Channel string `yaml:"channel" json:"channel"`
}

// SnapshotConfig controls the headless-browser PNG snapshot of the UI.
type SnapshotConfig struct {
	Width   int           `yaml:"width" json:"width"`
	Height  int           `yaml:"height" json:"height"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI.
	Listen string `yaml:"listen" json:"listen"`

	API APIConfig `yaml:"api" json:"api"`

	// Timezone is the IANA timezone used to decide what "today" is
	// (e.g. "Asia/Seoul"). "Local" uses the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls the first column of the month view:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// Resync is an optional cron-style schedule (e.g. "*/5 * * * *") for
	// refetching the event list in the background. Empty disables it.
	Resync string `yaml:"resync" json:"resync"`

	Conflicts ConflictConfig `yaml:"conflicts" json:"conflicts"`

	// LogLevel is one of "debug", "info", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Redis, if Addr is set, publishes every notification to Channel.
	Redis RedisConfig `yaml:"redis" json:"redis"`

	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen: defaultListen,
		API: APIConfig{
			Endpoint: defaultAPIEndpoint,
			Timeout:  defaultAPITimeout,
		},
		Timezone:  defaultTimezone,
		WeekStart: defaultWeekStart,
		LogLevel:  defaultLogLevel,
		Redis:     RedisConfig{Channel: defaultChannel},
		Snapshot: SnapshotConfig{
			Width:   1280,
			Height:  960,
			Timeout: 30 * time.Second,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.API.Endpoint == "" {
		c.API.Endpoint = defaultAPIEndpoint
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = defaultAPITimeout
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
		// ok
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = defaultWeekStart
	}
	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = defaultChannel
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = 1280
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = 960
	}
	if c.Snapshot.Timeout <= 0 {
		c.Snapshot.Timeout = 30 * time.Second
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// ApplyEnv overrides file values with EVSCHED_* environment variables.
// envFile, if non-empty and present, is loaded first; variables already set
// in the process environment take precedence over the file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if v := os.Getenv("EVSCHED_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("EVSCHED_API_ENDPOINT"); v != "" {
		c.API.Endpoint = v
	}
	if v := os.Getenv("EVSCHED_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.API.Timeout = d
		}
	}
	if v := os.Getenv("EVSCHED_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("EVSCHED_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	c.Normalize()
	return nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".evsched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
