package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero workers",
			mutate: func(cfg *Config) {
				cfg.Workers = 0
			},
			wantErr: "workers",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "zero calendar pages",
			mutate: func(cfg *Config) {
				cfg.MaxCalendarPages = 0
			},
			wantErr: "max calendar pages",
		},
		{
			name: "empty site",
			mutate: func(cfg *Config) {
				cfg.Site = ""
			},
			wantErr: "site",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 10 * time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "dedupe without capacity",
			mutate: func(cfg *Config) {
				cfg.Dedupe = true
				cfg.DedupeMaxSize = 0
			},
			wantErr: "dedupe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.MaxRetries != 1 || cfg.RetryBackoff != 5*time.Second {
		t.Fatalf("navigation retries = %d after %s, want 1 after 5s", cfg.MaxRetries, cfg.RetryBackoff)
	}
}

func TestOutputPath(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2025, 6, 28, 14, 5, 9, 0, time.UTC)

	assert.Equal(t, filepath.Join("data", "broadway_20250628_140509.csv"), cfg.OutputPath("broadway", "csv", now))
	assert.Equal(t, filepath.Join("data", "playbill_20250628_140509.jsonl"), cfg.OutputPath("playbill", ".jsonl", now))

	assert.Equal(t, "db", FormatExtension(FormatSQLite))
	assert.Equal(t, "jsonl", FormatExtension(FormatJSON))
	assert.Equal(t, "csv", FormatExtension(FormatDual))
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		preferred  string
		expected   string
	}{
		{name: "nothing set", expected: FormatCSV},
		{name: "site preference", preferred: "Dual", expected: FormatDual},
		{name: "configuration wins", configured: FormatSQLite, preferred: FormatDual, expected: FormatSQLite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.OutputFormat = tt.configured
			assert.Equal(t, tt.expected, cfg.FormatFor(tt.preferred))
		})
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scraper.yaml")
	content := "site: playbill\nmax_pages: 3\ncalendar_delay: 500ms\noutput_format: JSON\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("SCRAPER_MAX_CALENDAR_PAGES", "12")
	t.Setenv("SCRAPER_HEADLESS", "false")

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "playbill", cfg.Site)
	assert.Equal(t, 3, cfg.MaxPages)
	assert.Equal(t, 500*time.Millisecond, cfg.CalendarDelay)
	assert.Equal(t, FormatJSON, cfg.OutputFormat)
	assert.Equal(t, 12, cfg.MaxCalendarPages)
	assert.False(t, cfg.Headless)
	assert.Equal(t, DefaultConfig().BatchSize, cfg.BatchSize)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("SCRAPER_MAX_PAGES", "0")
	_, err := Load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max pages")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SCRAPER_TEST_DOTENV=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SCRAPER_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	value, ok := EnvString("SCRAPER_TEST_DOTENV")
	assert.True(t, ok)
	assert.Equal(t, "from-file", value)
}

func TestEnvInt(t *testing.T) {
	t.Setenv("SCRAPER_TEST_INT", "42")
	v, ok, err := EnvInt("SCRAPER_TEST_INT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	t.Setenv("SCRAPER_TEST_INT", "many")
	_, _, err = EnvInt("SCRAPER_TEST_INT")
	assert.Error(t, err)

	_, ok, err = EnvInt("SCRAPER_TEST_UNSET")
	require.NoError(t, err)
	assert.False(t, ok)
}
