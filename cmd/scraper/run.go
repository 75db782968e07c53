package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-shows/config"
	"github.com/aluiziolira/go-scrape-shows/models"
	"github.com/aluiziolira/go-scrape-shows/pipeline"
	"github.com/aluiziolira/go-scrape-shows/profile"
	"github.com/aluiziolira/go-scrape-shows/scraper"
)

func newRunCmd(root *rootFlags) *cobra.Command {
	d := config.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "run [site]",
		Short: "Scrape one site profile and write its rows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Site = args[0]
			}

			logger, closer, err := newLogger(os.Stdout, cfg.LogDir, cfg.Verbose)
			if err != nil {
				return err
			}
			defer closer.Close()
			slog.SetDefault(logger)

			reg, err := loadRegistry(cfg)
			if err != nil {
				return err
			}
			prof, err := reg.Get(cfg.Site)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				logger.Info("shutdown signal received, waiting for in-flight work to finish")
			}()

			metrics := scraper.NewMetrics()
			if cfg.MetricsAddr != "" {
				srv := serveMetrics(cfg.MetricsAddr, metrics, logger)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						logger.Error("metrics server shutdown failed", slog.Any("error", err))
					}
				}()
			}

			report, err := runSite(ctx, cfg, prof, logger, scraper.WithMetrics(metrics))
			if report != nil {
				printSummary(cmd.OutOrStdout(), report)
			}
			if err != nil {
				logger.Error("scraping failed", slog.Any("error", err))
			}
			return err
		},
	}

	f := cmd.Flags()
	f.String("profiles", "", "YAML or JSON file with additional site profiles")
	f.Int("pages", d.MaxPages, "maximum listing pages to scrape")
	f.Int("calendar", d.MaxCalendarPages, "maximum calendar pages per show")
	f.Int("shows", d.MaxShows, "maximum shows to scrape, 0 for all")
	f.String("format", d.OutputFormat, "output format: csv, json, dual or sqlite; empty uses the site's default")
	f.String("output-dir", d.OutputDir, "directory for output files")
	f.String("log-dir", d.LogDir, "directory for scrape.log, empty to log to the console only")
	f.Bool("headless", d.Headless, "run the browser headless")
	f.String("browser", d.BrowserBin, "browser binary, downloaded when empty")
	f.Int("max-retries", d.MaxRetries, "maximum retry attempts per page load")
	f.Duration("delay", d.Delay, "delay between static requests")
	f.Int("workers", d.Workers, "pipeline workers; more than one loses row order")
	f.Bool("dedupe", d.Dedupe, "drop rows identical to one already written in this run")
	f.String("metrics-addr", d.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	return cmd
}

// runReport is what a finished run reports to the console or over HTTP.
type runReport struct {
	Result       *models.ScraperResult
	Written      int64
	Validation   map[string]int
	Completeness models.Completeness
	Output       string
}

type namedWriter interface {
	pipeline.OutputWriter
	Filename() string
}

// runSite scrapes prof into a fresh output file. A run that extracts no
// rows leaves no file and is not an error.
func runSite(ctx context.Context, cfg *config.Config, prof *profile.Profile, logger *slog.Logger, opts ...scraper.Option) (*runReport, error) {
	writer, err := createWriter(cfg, prof, time.Now())
	if err != nil {
		return nil, err
	}

	opts = append([]scraper.Option{scraper.WithLogger(logger)}, opts...)
	s, err := scraper.NewScraper(cfg, prof, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialising scraper: %w", err)
	}
	runLogger := logger.With(slog.String("run_id", s.RunID()), slog.String("site", prof.Name))
	runLogger.Info("starting scrape",
		slog.String("start_url", prof.StartURL),
		slog.String("engine", string(prof.Engine)),
		slog.Int("pages", cfg.MaxPages),
	)

	p := pipeline.NewPipeline(ctx, writer, cfg, pipeline.WithRequired(prof.Required...), pipeline.WithLogger(runLogger))
	p.Start(cfg.Workers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, runErr := s.Run(ctx, p)
	closeErr := p.Close()
	if err := writer.Close(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("close writer: %w", err))
	}

	report := &runReport{
		Result:       result,
		Completeness: p.Completeness(),
		Output:       writer.Filename(),
	}
	metrics := p.GetMetrics()
	if processed, ok := metrics["processed_rows"].(int64); ok {
		report.Written = processed
	}
	if validation, ok := metrics["validation_errors"].(map[string]int); ok {
		report.Validation = validation
	}

	if err := writer.Validate(); err != nil {
		if !errors.Is(err, pipeline.ErrNoData) {
			closeErr = errors.Join(closeErr, fmt.Errorf("output validation: %w", err))
		} else {
			runLogger.Warn("no rows extracted, no output file written")
			report.Output = ""
		}
	}

	if runErr != nil {
		return report, runErr
	}
	if closeErr != nil {
		return report, fmt.Errorf("pipeline shutdown: %w", closeErr)
	}
	runLogger.Info("scrape finished",
		slog.Int64("rows", report.Written),
		slog.Duration("duration", result.Duration()),
		slog.String("output", report.Output),
	)
	return report, nil
}

// createWriter opens the writer for cfg's format, or the profile's when cfg
// names none, at <output dir>/<site>_<timestamp>.<ext>.
func createWriter(cfg *config.Config, prof *profile.Profile, now time.Time) (namedWriter, error) {
	format := cfg.FormatFor(prof.Format)
	path := cfg.OutputPath(prof.Name, config.FormatExtension(format), now)
	switch format {
	case config.FormatJSON:
		return pipeline.NewJSONWriter(path)
	case config.FormatSQLite:
		return pipeline.NewSQLiteWriter(path)
	case config.FormatDual:
		return pipeline.NewDualWriter(path, cfg.OutputPath(prof.Name, "jsonl", now), prof.Columns)
	case config.FormatCSV:
		return pipeline.NewCSVWriter(path, prof.Columns)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func serveMetrics(addr string, metrics *scraper.Metrics, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", addr))
	return srv
}

func printSummary(w io.Writer, report *runReport) {
	result := report.Result

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Scrape complete")
	t.AppendRows([]table.Row{
		{"Site", result.Site},
		{"Run ID", result.RunID},
		{"Shows", result.ShowCount},
		{"Rows extracted", result.TotalCount},
		{"Rows written", report.Written},
		{"Listing pages", result.PageCount},
		{"Calendar pages", result.CalendarPages},
		{"Success rate", fmt.Sprintf("%.2f%%", successRate(result))},
		{"Errors", result.ErrorCount},
		{"Retries", result.RetryCount},
		{"Failed URLs", len(result.FailedURLs)},
	})
	if len(result.ErrorsByType) > 0 {
		t.AppendRow(table.Row{"Error types", formatCounts(result.ErrorsByType)})
	}
	if len(report.Validation) > 0 {
		t.AppendRow(table.Row{"Validation", formatCounts(report.Validation)})
	}
	t.AppendRow(table.Row{"Duration", result.Duration().Round(time.Millisecond)})
	output := report.Output
	if output == "" {
		output = "none"
	}
	t.AppendRow(table.Row{"Output file", output})
	t.Render()

	if len(report.Completeness.Missing) == 0 {
		return
	}
	c := table.NewWriter()
	c.SetOutputMirror(w)
	c.SetStyle(table.StyleRounded)
	c.SetTitle("Defaulted fields")
	c.AppendHeader(table.Row{"Field", "N/A rows", "Extracted"})
	c.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	names := make([]string, 0, len(report.Completeness.Missing))
	for name := range report.Completeness.Missing {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ratio := report.Completeness.Ratio(name) * 100
		c.AppendRow(table.Row{name, report.Completeness.Missing[name], fmt.Sprintf("%.1f%%", ratio)})
	}
	c.Render()
}

func successRate(result *models.ScraperResult) float64 {
	if result.RequestCount == 0 {
		return 0
	}
	return float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", k, counts[k])
	}
	return out
}
