// Package config loads daemon settings from ~/.dosekeeper/config.yaml, an
// optional .env file and DOSEKEEPER_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fentz26/dosekeeper/internal/connectors"
	"github.com/fentz26/dosekeeper/internal/scheduler"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MemoryDB selects the in-process store instead of SQLite.
const MemoryDB = ":memory:"

// Notifier kinds.
const (
	NotifierDesktop = "desktop"
	NotifierWebhook = "webhook"
	NotifierNone    = "none"
)

// Config holds daemon configuration.
type Config struct {
	// Listen is the API listen address.
	Listen string `yaml:"listen"`
	// DBPath is the SQLite file, or ":memory:".
	DBPath string `yaml:"db_path"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogDev switches to human-readable console logs.
	LogDev bool `yaml:"log_dev"`
	// Vibration names the profile pattern: default, short, long, pulse.
	Vibration string `yaml:"vibration"`

	Notifier  NotifierConfig   `yaml:"notifier"`
	Guardian  GuardianConfig   `yaml:"guardian"`
	Scheduler scheduler.Config `yaml:"scheduler"`
}

// NotifierConfig selects how reminders reach the user.
type NotifierConfig struct {
	Kind       string `yaml:"kind"`
	WebhookURL string `yaml:"webhook_url,omitempty"`
}

// GuardianConfig configures escalation to a caregiver.
type GuardianConfig struct {
	Enabled bool          `yaml:"enabled"`
	Name    string        `yaml:"name,omitempty"`
	After   time.Duration `yaml:"after"`
}

// Dir returns ~/.dosekeeper, or the working directory when home is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".dosekeeper")
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:7466",
		DBPath:    filepath.Join(Dir(), "dosekeeper.db"),
		LogLevel:  "info",
		Vibration: "default",
		Notifier:  NotifierConfig{Kind: NotifierDesktop},
		Guardian:  GuardianConfig{After: 30 * time.Minute},
		Scheduler: *scheduler.DefaultConfig(),
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if _, err := connectors.PatternByName(c.Vibration); err != nil {
		return err
	}
	switch c.Notifier.Kind {
	case NotifierDesktop, NotifierNone:
	case NotifierWebhook:
		if c.Notifier.WebhookURL == "" {
			return errors.New("notifier.webhook_url is required for the webhook notifier")
		}
	default:
		return fmt.Errorf("unknown notifier kind %q", c.Notifier.Kind)
	}
	if c.Guardian.Enabled && c.Guardian.After <= 0 {
		return errors.New("guardian.after must be positive")
	}
	return nil
}

// LoadConfig loads configuration from a YAML file. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromHome loads configuration from ~/.dosekeeper/config.yaml.
func LoadConfigFromHome() (*Config, error) {
	return LoadConfig(filepath.Join(Dir(), "config.yaml"))
}

// Load reads the YAML file at path (the home config when empty), merges an
// optional .env file into the process environment and applies DOSEKEEPER_*
// overrides.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var cfg *Config
	var err error
	if path == "" {
		cfg, err = LoadConfigFromHome()
	} else {
		cfg, err = LoadConfig(path)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DOSEKEEPER_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("DOSEKEEPER_LISTEN", &c.Listen)
	str("DOSEKEEPER_DB", &c.DBPath)
	str("DOSEKEEPER_LOG_LEVEL", &c.LogLevel)
	str("DOSEKEEPER_VIBRATION", &c.Vibration)
	str("DOSEKEEPER_NOTIFIER", &c.Notifier.Kind)
	str("DOSEKEEPER_WEBHOOK_URL", &c.Notifier.WebhookURL)

	if v, ok := lookup("DOSEKEEPER_LOG_DEV"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DOSEKEEPER_LOG_DEV: %w", err)
		}
		c.LogDev = b
	}
	if v, ok := lookup("DOSEKEEPER_GUARDIAN_NAME"); ok && v != "" {
		c.Guardian.Name = v
		c.Guardian.Enabled = true
	}
	if v, ok := lookup("DOSEKEEPER_GUARDIAN_AFTER"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DOSEKEEPER_GUARDIAN_AFTER: %w", err)
		}
		c.Guardian.After = d
	}
	return nil
}

// SaveConfig saves configuration to a YAML file, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
