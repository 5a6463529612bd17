package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/flowmesh/archiver/internal/destination"
	"github.com/flowmesh/archiver/internal/recovery"
	"github.com/flowmesh/archiver/internal/table"
)

// EnvPrefix is prepended to every environment variable
const EnvPrefix = "ARCHIVER_"

// Config represents the application configuration
type Config struct {
	// Storage configuration
	Storage StorageConfig `envPrefix:"STORAGE_" yaml:"storage"`

	// Table file locations
	Tables TablesConfig `envPrefix:"TABLES_" yaml:"tables"`

	// Archiving behaviour
	Archive ArchiveConfig `envPrefix:"ARCHIVE_" yaml:"archive"`

	// Static table and filename bounds
	Limits table.Limits `envPrefix:"LIMITS_" yaml:"limits"`

	// Identifiers stamped into file headers
	Header destination.HeaderInfo `envPrefix:"HEADER_" yaml:"header"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`

	// Configuration file path
	ConfigFile string `env:"CONFIG_FILE" yaml:"-"`
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	// Data directory path
	DataDir string `env:"DATA_DIR" envDefault:"./data" yaml:"data_dir"`

	// Sequence recovery backend: "pebble", "bolt", "memory"
	RecoveryBackend string `env:"RECOVERY_BACKEND" envDefault:"pebble" yaml:"recovery_backend"`

	// Recovery directory, defaults to <data dir>/recovery
	RecoveryDir string `env:"RECOVERY_DIR" yaml:"recovery_dir"`
}

// TablesConfig holds the table file paths
type TablesConfig struct {
	// Filter table JSON file
	FilterTable string `env:"FILTER_TABLE" yaml:"filter_table"`

	// Destination table JSON file
	DestinationTable string `env:"DESTINATION_TABLE" yaml:"destination_table"`
}

// ArchiveConfig holds archiving behaviour
type ArchiveConfig struct {
	// Start with packet processing enabled
	Enabled bool `env:"ENABLED" envDefault:"true" yaml:"enabled"`

	// Age check period, whole seconds
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1s" yaml:"tick_interval"`

	// Sync policy: "none", "close", "always"
	SyncPolicy string `env:"SYNC_POLICY" envDefault:"close" yaml:"sync_policy"`

	// Create missing destination directories
	CreateDirs bool `env:"CREATE_DIRS" envDefault:"true" yaml:"create_dirs"`

	// Capture files replayed at startup
	Captures []string `env:"CAPTURES" envSeparator:"," yaml:"captures"`

	// Keep running after replay until signalled
	Hold bool `env:"HOLD" envDefault:"false" yaml:"hold"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Log level: "debug", "info", "warn", "error"
	Level string `env:"LOG_LEVEL" envDefault:"info" yaml:"level"`

	// Log format: "json", "text"
	Format string `env:"LOG_FORMAT" envDefault:"json" yaml:"format"`

	// Log file path (empty for stdout)
	Output string `env:"LOG_OUTPUT" envDefault:"" yaml:"output"`

	// Enable log rotation
	Rotation bool `env:"LOG_ROTATION" envDefault:"true" yaml:"rotation"`

	// Max log file size in MB
	MaxSize int `env:"LOG_MAX_SIZE" envDefault:"100" yaml:"max_size"`

	// Number of backup files to keep
	MaxBackups int `env:"LOG_MAX_BACKUPS" envDefault:"7" yaml:"max_backups"`

	// Max age in days
	MaxAge int `env:"LOG_MAX_AGE" envDefault:"30" yaml:"max_age"`
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	// Enable Prometheus metrics
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true" yaml:"enabled"`

	// Metrics server address
	Addr string `env:"METRICS_ADDR" envDefault:":9090" yaml:"addr"`

	// Metrics path
	Path string `env:"METRICS_PATH" envDefault:"/metrics" yaml:"path"`
}

// Load loads configuration from multiple sources, later ones winning:
// 1. Default values
// 2. Environment variables
// 3. Configuration file (YAML)
// 4. Command line flags
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	flags := cfg.flagSet()
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		if err := loadFromFile(cfg, cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		// Flags given explicitly override the file
		reapply := cfg.flagSet()
		flags.Visit(func(f *flag.Flag) {
			//nolint:errcheck // Value was already parsed once
			_ = reapply.Set(f.Name, f.Value.String())
		})
	}

	cfg.Storage.DataDir = filepath.Clean(cfg.Storage.DataDir)
	if cfg.Storage.RecoveryDir == "" {
		cfg.Storage.RecoveryDir = filepath.Join(cfg.Storage.DataDir, "recovery")
	}
	cfg.Archive.Captures = append(cfg.Archive.Captures, flags.Args()...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("archived", flag.ContinueOnError)
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "Path to configuration file")
	fs.StringVar(&c.Storage.DataDir, "data-dir", c.Storage.DataDir, "Data directory path")
	fs.StringVar(&c.Storage.RecoveryBackend, "recovery-backend", c.Storage.RecoveryBackend, "Sequence recovery backend (pebble, bolt, memory)")
	fs.StringVar(&c.Tables.FilterTable, "filter-table", c.Tables.FilterTable, "Filter table file")
	fs.StringVar(&c.Tables.DestinationTable, "destination-table", c.Tables.DestinationTable, "Destination table file")
	fs.DurationVar(&c.Archive.TickInterval, "tick", c.Archive.TickInterval, "Age check period")
	fs.BoolVar(&c.Archive.Hold, "hold", c.Archive.Hold, "Keep running after replay until signalled")
	fs.StringVar(&c.Logging.Level, "log-level", c.Logging.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.Logging.Format, "log-format", c.Logging.Format, "Log format (json, text)")
	fs.StringVar(&c.Metrics.Addr, "metrics-addr", c.Metrics.Addr, "Metrics server address")
	return fs
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	switch strings.ToLower(c.Storage.RecoveryBackend) {
	case recovery.BackendPebble, recovery.BackendBolt, recovery.BackendMemory:
	default:
		return fmt.Errorf("invalid recovery backend: %s", c.Storage.RecoveryBackend)
	}

	if c.Tables.FilterTable == "" || c.Tables.DestinationTable == "" {
		return fmt.Errorf("filter and destination table files are required")
	}

	if c.Archive.TickInterval < time.Second || c.Archive.TickInterval%time.Second != 0 {
		return fmt.Errorf("tick interval must be a whole number of seconds: %s", c.Archive.TickInterval)
	}

	if _, ok := destination.ParseSyncPolicy(c.Archive.SyncPolicy); !ok {
		return fmt.Errorf("invalid sync policy: %s", c.Archive.SyncPolicy)
	}

	if err := c.Limits.Validate(); err != nil {
		return err
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics address cannot be empty when metrics are enabled")
	}

	return nil
}

// TickSeconds returns the age check period in seconds
func (c *Config) TickSeconds() uint32 {
	return uint32(c.Archive.TickInterval / time.Second)
}

// loadFromFile overlays a YAML document onto cfg. Keys absent from the
// file keep their current values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
