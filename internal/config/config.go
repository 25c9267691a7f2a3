package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sink names used as keys of the logging_level block.
const (
	SinkConsole = "console"
	SinkLog     = "log"
)

// DefaultLoggingLevel is the threshold applied to both sinks when the
// logging_level block is absent (6 = info).
const DefaultLoggingLevel = 6

// Environment overrides for the logging_level block.
const (
	EnvConsoleLogLevel = "GARBAGEMAN_CONSOLE_LOG_LEVEL"
	EnvLogLevel        = "GARBAGEMAN_LOG_LEVEL"
)

var identExpr = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Config contains runtime configuration for garbageman.
type Config struct {
	LogLevel            string                 `yaml:"log_level"`
	DispatchPurgeEvents bool                   `yaml:"dispatch_purge_events"`
	LoggingLevel        map[string]int         `yaml:"logging_level"`
	Schedule            Schedule               `yaml:"schedule"`
	Models              map[string]ModelConfig `yaml:"models"`
	Database            DatabaseConfig         `yaml:"database"`
	Events              EventsConfig           `yaml:"events"`
	Cron                string                 `yaml:"cron"`
	MetricsAddr         string                 `yaml:"metrics_addr"`
}

// ModelConfig maps a model identifier onto the table holding its records.
type ModelConfig struct {
	Table           string `yaml:"table"`
	PrimaryKey      string `yaml:"primary_key"`
	DeletedAtColumn string `yaml:"deleted_at_column"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// EventsConfig controls purge notifications.
type EventsConfig struct {
	Namespace     string `yaml:"namespace"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`
}

// Default returns a Config populated with safe defaults.
func Default() Config {
	return Config{
		LogLevel:            "info",
		DispatchPurgeEvents: false,
		LoggingLevel: map[string]int{
			SinkConsole: DefaultLoggingLevel,
			SinkLog:     DefaultLoggingLevel,
		},
		Models: map[string]ModelConfig{},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(userHomeDir(), ".garbageman", "app.db"),
		},
		Events: EventsConfig{
			Namespace:    "garbageman",
			RedisChannel: "garbageman.events",
		},
		Cron:        "0 3 * * *",
		MetricsAddr: ":9464",
	}
}

// Load loads config from disk; if path does not exist, default config is returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := cfg.decode(b); err != nil {
				return cfg, err
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.fillModelDefaults()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// decode overlays a YAML document on the defaults. A logging_level block that
// is present replaces the default thresholds wholesale, so a sink omitted from
// it ends up unfiltered.
func (c *Config) decode(b []byte) error {
	defaults := c.LoggingLevel
	c.LoggingLevel = nil
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	if c.LoggingLevel == nil {
		c.LoggingLevel = defaults
	}
	return nil
}

func (c *Config) applyEnv() error {
	for sink, key := range map[string]string{SinkConsole: EnvConsoleLogLevel, SinkLog: EnvLogLevel} {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		if c.LoggingLevel == nil {
			c.LoggingLevel = map[string]int{}
		}
		c.LoggingLevel[sink] = n
	}
	return nil
}

func (c *Config) fillModelDefaults() {
	for id, m := range c.Models {
		if m.PrimaryKey == "" {
			m.PrimaryKey = "id"
		}
		if m.DeletedAtColumn == "" {
			m.DeletedAtColumn = "deleted_at"
		}
		c.Models[id] = m
	}
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	for sink, level := range c.LoggingLevel {
		if sink != SinkConsole && sink != SinkLog {
			continue
		}
		if level < 0 || level > 7 {
			return fmt.Errorf("logging_level.%s must be between 0 and 7, got %d", sink, level)
		}
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	for id, m := range c.Models {
		if strings.TrimSpace(id) == "" {
			return errors.New("models: model identifier must not be empty")
		}
		if !identExpr.MatchString(m.Table) {
			return fmt.Errorf("models.%s: invalid table %q", id, m.Table)
		}
		if !identExpr.MatchString(m.PrimaryKey) {
			return fmt.Errorf("models.%s: invalid primary_key %q", id, m.PrimaryKey)
		}
		if !identExpr.MatchString(m.DeletedAtColumn) {
			return fmt.Errorf("models.%s: invalid deleted_at_column %q", id, m.DeletedAtColumn)
		}
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn must not be empty")
	}
	if strings.TrimSpace(c.Events.Namespace) == "" {
		return errors.New("events.namespace must not be empty")
	}
	if c.Events.RedisAddr != "" && c.Events.RedisChannel == "" {
		return errors.New("events.redis_channel must not be empty when redis_addr is set")
	}
	return nil
}

// EnsurePaths creates parent directories for config-managed paths.
func (c *Config) EnsurePaths() error {
	if c.Database.Driver != "sqlite" {
		return nil
	}
	c.Database.DSN = ExpandPath(c.Database.DSN)
	parent := filepath.Dir(c.Database.DSN)
	if parent == "." {
		return nil
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create db parent dir: %w", err)
	}
	return nil
}

// ExpandPath expands "~/" to the current user's home directory.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p == "~" {
		return userHomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(userHomeDir(), p[2:])
	}
	return p
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
