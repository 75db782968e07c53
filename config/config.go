package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aluiziolira/go-scrape-shows/session"
)

// EnvPrefix prefixes every environment override, e.g. SCRAPER_MAX_PAGES.
const EnvPrefix = "SCRAPER"

// Output formats.
const (
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatDual   = "dual"
	FormatSQLite = "sqlite"
)

// Config holds scraper configuration.
type Config struct {
	Site         string `mapstructure:"site"`
	ProfilesFile string `mapstructure:"profiles_file"`

	Headless       bool   `mapstructure:"headless"`
	BrowserBin     string `mapstructure:"browser_bin"`
	UserAgent      string `mapstructure:"user_agent"`
	AcceptLanguage string `mapstructure:"accept_language"`
	WindowSize     string `mapstructure:"window_size"`

	Timeout        time.Duration `mapstructure:"timeout"`
	WaitTimeout    time.Duration `mapstructure:"wait_timeout"`
	Delay          time.Duration `mapstructure:"delay"`
	RandomDelay    time.Duration `mapstructure:"random_delay"`
	CalendarDelay  time.Duration `mapstructure:"calendar_delay"`
	CalendarJitter time.Duration `mapstructure:"calendar_jitter"`

	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffMax time.Duration `mapstructure:"retry_backoff_max"`

	MaxPages         int `mapstructure:"max_pages"`
	MaxCalendarPages int `mapstructure:"max_calendar_pages"`
	MaxShows         int `mapstructure:"max_shows"`

	OutputDir    string `mapstructure:"output_dir"`
	OutputFormat string `mapstructure:"output_format"` // csv, json, dual or sqlite; empty defers to the site
	LogDir       string `mapstructure:"log_dir"`

	Workers            int  `mapstructure:"workers"`
	PipelineBufferSize int  `mapstructure:"pipeline_buffer_size"`
	BatchSize          int  `mapstructure:"batch_size"`
	Dedupe             bool `mapstructure:"dedupe"`
	DedupeMaxSize      int  `mapstructure:"dedupe_max_size"`

	MetricsAddr      string `mapstructure:"metrics_addr"`
	ServeAddr        string `mapstructure:"serve_addr"`
	Verbose          bool   `mapstructure:"verbose"`
	RespectRobotsTxt bool   `mapstructure:"respect_robots_txt"`
}

// DefaultConfig returns the defaults the target sites were scraped with.
func DefaultConfig() *Config {
	return &Config{
		Site:               "broadway",
		Headless:           true,
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.5845.188 Safari/537.36",
		AcceptLanguage:     "en-US,en;q=0.9",
		WindowSize:         "1920,1080",
		Timeout:            30 * time.Second,
		WaitTimeout:        10 * time.Second,
		Delay:              0,
		RandomDelay:        0,
		CalendarDelay:      2 * time.Second,
		CalendarJitter:     1 * time.Second,
		MaxRetries:         1,
		RetryBackoff:       5 * time.Second,
		RetryBackoffMax:    5 * time.Second,
		MaxPages:           50,
		MaxCalendarPages:   36,
		MaxShows:           0,
		OutputDir:          "data",
		OutputFormat:       "",
		LogDir:             "log",
		Workers:            1,
		PipelineBufferSize: 512,
		BatchSize:          64,
		Dedupe:             false,
		DedupeMaxSize:      100000,
		ServeAddr:          ":8080",
		Verbose:            false,
		RespectRobotsTxt:   false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Site == "" {
		return fmt.Errorf("site cannot be empty")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.MaxCalendarPages <= 0 {
		return fmt.Errorf("max calendar pages must be positive")
	}
	if c.MaxShows < 0 {
		return fmt.Errorf("max shows cannot be negative")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.CalendarDelay < 0 || c.CalendarJitter < 0 {
		return fmt.Errorf("calendar delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	switch c.OutputFormat {
	case "", FormatCSV, FormatJSON, FormatDual, FormatSQLite:
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Dedupe && c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive when dedupe is enabled")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// SessionOptions translates the configuration into session options.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Headless:         c.Headless,
		Bin:              c.BrowserBin,
		UserAgent:        c.UserAgent,
		AcceptLanguage:   c.AcceptLanguage,
		WindowSize:       c.WindowSize,
		Timeout:          c.Timeout,
		Delay:            c.Delay,
		RandomDelay:      c.RandomDelay,
		RespectRobotsTxt: c.RespectRobotsTxt,
	}
}

// FormatFor returns the configured output format, else the site's preferred
// one, else CSV.
func (c *Config) FormatFor(preferred string) string {
	switch {
	case c.OutputFormat != "":
		return c.OutputFormat
	case preferred != "":
		return strings.ToLower(preferred)
	default:
		return FormatCSV
	}
}

// FormatExtension returns the file extension of the primary output file of
// format.
func FormatExtension(format string) string {
	switch format {
	case FormatJSON:
		return "jsonl"
	case FormatSQLite:
		return "db"
	default:
		return "csv"
	}
}

// OutputPath returns data/<site>_<YYYYMMDD_HHMMSS>.<ext> under the output
// directory.
func (c *Config) OutputPath(site, ext string, now time.Time) string {
	name := fmt.Sprintf("%s_%s.%s", site, now.Format("20060102_150405"), strings.TrimPrefix(ext, "."))
	return filepath.Join(c.OutputDir, name)
}

// SetDefaults registers every default on v so that environment variables
// can override keys that appear in no config file.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("site", d.Site)
	v.SetDefault("profiles_file", d.ProfilesFile)
	v.SetDefault("headless", d.Headless)
	v.SetDefault("browser_bin", d.BrowserBin)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("accept_language", d.AcceptLanguage)
	v.SetDefault("window_size", d.WindowSize)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("wait_timeout", d.WaitTimeout)
	v.SetDefault("delay", d.Delay)
	v.SetDefault("random_delay", d.RandomDelay)
	v.SetDefault("calendar_delay", d.CalendarDelay)
	v.SetDefault("calendar_jitter", d.CalendarJitter)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("retry_backoff", d.RetryBackoff)
	v.SetDefault("retry_backoff_max", d.RetryBackoffMax)
	v.SetDefault("max_pages", d.MaxPages)
	v.SetDefault("max_calendar_pages", d.MaxCalendarPages)
	v.SetDefault("max_shows", d.MaxShows)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("pipeline_buffer_size", d.PipelineBufferSize)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("dedupe", d.Dedupe)
	v.SetDefault("dedupe_max_size", d.DedupeMaxSize)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("serve_addr", d.ServeAddr)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("respect_robots_txt", d.RespectRobotsTxt)
}

// Load builds a Config from v: defaults, then the config file if one is
// set, then SCRAPER_* environment variables, then any flags bound to v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from the given files, .env by
// default. Missing files are ignored and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// EnvInt reads an integer environment variable.
func EnvInt(key string) (int, bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return v, true, nil
}

// EnvString reads a non-empty environment variable.
func EnvString(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return strings.TrimSpace(raw), true
}
