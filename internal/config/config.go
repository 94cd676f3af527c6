package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvsettings/nvsettings/internal/nvs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for nvsettings
type Config struct {
	// Server configuration
	Listen    string `mapstructure:"listen"`
	DataDir   string `mapstructure:"data_dir"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text, json

	// Store configuration
	Store StoreConfig `mapstructure:"store"`

	// Clock configuration
	Clock ClockConfig `mapstructure:"clock"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Write rate limiting
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// StoreConfig defines the NVS backend configuration
type StoreConfig struct {
	Backend    string `mapstructure:"backend"` // memory, badger, pebble, sqlite
	Namespace  string `mapstructure:"namespace"`
	MaxKeyLen  int    `mapstructure:"max_key_len"`
	SyncWrites bool   `mapstructure:"sync_writes"`
}

// ClockConfig defines how DateTime settings reach the system clock
type ClockConfig struct {
	AllowSet bool   `mapstructure:"allow_set"`
	Timezone string `mapstructure:"timezone"` // IANA name, empty for local time
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RateLimitConfig caps settings writes per client. Zero disables it.
type RateLimitConfig struct {
	WritesPerSecond float64 `mapstructure:"writes_per_second"`
	Burst           int     `mapstructure:"burst"`
}

// Location resolves Clock.Timezone
func (c ClockConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// AddFlags registers the flags read by Load on cmd and its subcommands
func AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.String("listen", ":8080", "HTTP listen address")
	flags.String("data-dir", "", "Data directory for the settings store")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.String("backend", "pebble", "Store backend (memory, badger, pebble, sqlite)")
	flags.Bool("allow-clock-set", false, "Allow DateTime settings to change the system clock")
}

// Load loads configuration from various sources
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Bind command line flags
	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	// Read from config file if specified
	if f := cmd.Flags().Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Read from environment variables
	v.SetEnvPrefix("NVSETTINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	// NO default for data_dir - required by on-disk backends
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// Store defaults
	v.SetDefault("store.backend", "pebble")
	v.SetDefault("store.namespace", "settings_nvs")
	v.SetDefault("store.max_key_len", nvs.DefaultMaxKeyLen)
	v.SetDefault("store.sync_writes", true)

	// Clock defaults
	v.SetDefault("clock.allow_set", false)
	v.SetDefault("clock.timezone", "")

	// Metrics defaults
	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	// Rate limit defaults
	v.SetDefault("ratelimit.writes_per_second", 1.0)
	v.SetDefault("ratelimit.burst", 5)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":          "listen",
		"data-dir":        "data_dir",
		"log-level":       "log_level",
		"log-format":      "log_format",
		"backend":         "store.backend",
		"allow-clock-set": "clock.allow_set",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)
	known := false
	for _, b := range nvs.Backends {
		if cfg.Store.Backend == b {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown store backend %q (want one of %s)", cfg.Store.Backend, strings.Join(nvs.Backends, ", "))
	}

	if cfg.Store.MaxKeyLen <= 0 {
		return fmt.Errorf("store.max_key_len must be positive, got %d", cfg.Store.MaxKeyLen)
	}
	if cfg.Store.Namespace == "" || len(cfg.Store.Namespace) > cfg.Store.MaxKeyLen {
		return fmt.Errorf("store.namespace %q must be 1 to %d bytes", cfg.Store.Namespace, cfg.Store.MaxKeyLen)
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (want text or json)", cfg.LogFormat)
	}

	if cfg.RateLimit.WritesPerSecond < 0 {
		return fmt.Errorf("ratelimit.writes_per_second must not be negative")
	}

	if _, err := cfg.Clock.Location(); err != nil {
		return fmt.Errorf("invalid clock.timezone: %w", err)
	}

	if cfg.Store.Backend == "memory" {
		return nil
	}

	// Validate that data_dir is configured (either via flag, config file, or env var)
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required for the %s backend: specify via --data-dir flag, config file, or NVSETTINGS_DATA_DIR environment variable", cfg.Store.Backend)
	}

	if !filepath.IsAbs(cfg.DataDir) {
		if abs, err := filepath.Abs(cfg.DataDir); err == nil {
			cfg.DataDir = abs
		}
	}

	if _, err := os.Stat(cfg.DataDir); os.IsNotExist(err) {
		logrus.Debugf("Creating data directory: %s", cfg.DataDir)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}
