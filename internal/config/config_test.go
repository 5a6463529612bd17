package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tableArgs = []string{"-filter-table", "filter.json", "-destination-table", "dest.json"}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(tableArgs)
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join("data", "recovery"), cfg.Storage.RecoveryDir)
	assert.Equal(t, "pebble", cfg.Storage.RecoveryBackend)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, time.Second, cfg.Archive.TickInterval)
	assert.Equal(t, uint32(1), cfg.TickSeconds())
	assert.Equal(t, "close", cfg.Archive.SyncPolicy)
	assert.Equal(t, 256, cfg.Limits.FilterEntries)
	assert.Equal(t, uint32(99999999), cfg.Limits.MaxSequence)
	assert.Equal(t, uint32(66), cfg.Header.SpacecraftID)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Empty(t, cfg.Archive.Captures)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("ARCHIVER_STORAGE_RECOVERY_BACKEND", "bolt")
	t.Setenv("ARCHIVER_LIMITS_DESTINATIONS", "8")
	t.Setenv("ARCHIVER_HEADER_PROCESSOR_ID", "2")
	t.Setenv("ARCHIVER_LOG_LEVEL", "debug")
	t.Setenv("ARCHIVER_ARCHIVE_CAPTURES", "a.cap,b.cap")
	t.Setenv("ARCHIVER_TABLES_FILTER_TABLE", "f.json")
	t.Setenv("ARCHIVER_TABLES_DESTINATION_TABLE", "d.json")

	cfg, err := Load([]string{"c.cap"})
	require.NoError(t, err)

	assert.Equal(t, "bolt", cfg.Storage.RecoveryBackend)
	assert.Equal(t, 8, cfg.Limits.Destinations)
	assert.Equal(t, uint32(2), cfg.Header.ProcessorID)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"a.cap", "b.cap", "c.cap"}, cfg.Archive.Captures)
	assert.Equal(t, "f.json", cfg.Tables.FilterTable)
}

func TestLoad_FileThenFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archiver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  data_dir: /var/lib/archiver
  recovery_backend: bolt
tables:
  filter_table: /etc/archiver/filter.json
  destination_table: /etc/archiver/dest.json
archive:
  tick_interval: 5s
  sync_policy: always
limits:
  max_filename_len: 128
logging:
  level: warn
`), 0600))

	cfg, err := Load([]string{"-config", path, "-log-level", "error"})
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/archiver", cfg.Storage.DataDir)
	assert.Equal(t, "/var/lib/archiver/recovery", cfg.Storage.RecoveryDir)
	assert.Equal(t, "bolt", cfg.Storage.RecoveryBackend)
	assert.Equal(t, uint32(5), cfg.TickSeconds())
	assert.Equal(t, "always", cfg.Archive.SyncPolicy)
	assert.Equal(t, 128, cfg.Limits.MaxFilenameLen)
	// Untouched by the file
	assert.Equal(t, 16, cfg.Limits.Destinations)
	// Explicit flag beats the file
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(append([]string{"-config", "/nonexistent/archiver.yaml"}, tableArgs...))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(tableArgs)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"bad backend", func(c *Config) { c.Storage.RecoveryBackend = "redis" }},
		{"no tables", func(c *Config) { c.Tables.FilterTable = "" }},
		{"sub-second tick", func(c *Config) { c.Archive.TickInterval = 500 * time.Millisecond }},
		{"fractional tick", func(c *Config) { c.Archive.TickInterval = 1500 * time.Millisecond }},
		{"bad sync policy", func(c *Config) { c.Archive.SyncPolicy = "sometimes" }},
		{"bad limits", func(c *Config) { c.Limits.SequenceDigits = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"no metrics addr", func(c *Config) { c.Metrics.Addr = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, valid().Validate())
}
