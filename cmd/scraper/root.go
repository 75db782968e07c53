package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/aluiziolira/go-scrape-shows/config"
	"github.com/aluiziolira/go-scrape-shows/profile"
)

type rootFlags struct {
	cfgFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "scraper",
		Short:        "Scrape show listings, calendars and schedules into flat files",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newRunCmd(flags), newSitesCmd(flags), newServeCmd(flags))
	return cmd
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"verbose":      "verbose",
	"profiles":     "profiles_file",
	"pages":        "max_pages",
	"calendar":     "max_calendar_pages",
	"shows":        "max_shows",
	"format":       "output_format",
	"output-dir":   "output_dir",
	"log-dir":      "log_dir",
	"headless":     "headless",
	"browser":      "browser_bin",
	"max-retries":  "max_retries",
	"delay":        "delay",
	"workers":      "workers",
	"dedupe":       "dedupe",
	"metrics-addr": "metrics_addr",
	"addr":         "serve_addr",
}

// loadConfig resolves the configuration of a command: .env, then the config
// file, SCRAPER_* variables and finally the flags that were set.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	if flags.cfgFile != "" {
		v.SetConfigFile(flags.cfgFile)
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("bind flags: %w", bindErr)
	}

	return config.Load(v)
}

// loadRegistry returns the built-in profiles plus those of the profiles
// file, if any.
func loadRegistry(cfg *config.Config) (*profile.Registry, error) {
	reg := profile.NewRegistry()
	if cfg.ProfilesFile == "" {
		return reg, nil
	}
	if err := reg.LoadFile(cfg.ProfilesFile); err != nil {
		return nil, err
	}
	slog.Debug("profiles loaded", slog.String("file", cfg.ProfilesFile))
	return reg, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
