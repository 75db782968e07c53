package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-shows/config"
	"github.com/aluiziolira/go-scrape-shows/profile"
	"github.com/aluiziolira/go-scrape-shows/scraper"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	d := config.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an HTTP endpoint that runs a site profile per request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			port, ok, err := config.EnvInt("PORT")
			if err != nil {
				return err
			}
			if ok && !cmd.Flags().Changed("addr") {
				cfg.ServeAddr = fmt.Sprintf(":%d", port)
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return newServer(cfg, reg, logger).listen(ctx)
		},
	}
	cmd.Flags().String("addr", d.ServeAddr, "listen address; PORT overrides the default")
	cmd.Flags().String("profiles", "", "YAML or JSON file with additional site profiles")
	cmd.Flags().String("format", d.OutputFormat, "output format: csv, json, dual or sqlite; empty uses the site's default")
	cmd.Flags().String("output-dir", d.OutputDir, "directory for output files")
	cmd.Flags().String("log-dir", d.LogDir, "directory for scrape.log, empty to log to the console only")
	return cmd
}

// server runs one profile per request. Runs share one metrics registry and
// never overlap.
type server struct {
	cfg      *config.Config
	registry *profile.Registry
	metrics  *scraper.Metrics
	logger   *slog.Logger
	opts     []scraper.Option
	busy     atomic.Bool
}

func newServer(cfg *config.Config, reg *profile.Registry, logger *slog.Logger, opts ...scraper.Option) *server {
	return &server{
		cfg:      cfg,
		registry: reg,
		metrics:  scraper.NewMetrics(),
		logger:   logger,
		opts:     opts,
	}
}

func (s *server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/healthz", health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	e.GET("/run/:site", s.run)
	e.POST("/run/:site", s.run)
	return e
}

func (s *server) listen(ctx context.Context) error {
	e := s.routes()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting server", slog.String("addr", s.cfg.ServeAddr))
		if err := e.Start(s.cfg.ServeAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error stopping server", slog.Any("error", err))
			return err
		}
		return nil
	})
	return g.Wait()
}

func health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type runRequest struct {
	Name string `json:"name"`
}

type runResponse struct {
	Message       string         `json:"message"`
	RunID         string         `json:"run_id,omitempty"`
	Site          string         `json:"site"`
	Shows         int            `json:"shows"`
	Rows          int64          `json:"rows"`
	Errors        int            `json:"errors"`
	Retries       int            `json:"retries"`
	FailedURLs    []string       `json:"failed_urls,omitempty"`
	Missing       map[string]int `json:"missing,omitempty"`
	Output        string         `json:"output,omitempty"`
	DurationMilli int64          `json:"duration_ms"`
	Error         string         `json:"error,omitempty"`
}

// run scrapes the requested site and greets the caller by the name given in
// the JSON body or the query string.
func (s *server) run(c echo.Context) error {
	prof, err := s.registry.Get(c.Param("site"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if !s.busy.CompareAndSwap(false, true) {
		return echo.NewHTTPError(http.StatusConflict, "a run is already in progress")
	}
	defer s.busy.Store(false)

	var req runRequest
	// Malformed bodies fall back to the query string.
	_ = (&echo.DefaultBinder{}).BindBody(c, &req)
	name := req.Name
	if name == "" {
		name = c.QueryParam("name")
	}
	if name == "" {
		name = "World"
	}

	opts := append([]scraper.Option{scraper.WithMetrics(s.metrics)}, s.opts...)
	report, err := runSite(c.Request().Context(), s.cfg, prof, s.logger, opts...)

	resp := runResponse{Message: fmt.Sprintf("Hello %s!", name), Site: prof.Name}
	if report != nil {
		r := report.Result
		resp.RunID = r.RunID
		resp.Shows = r.ShowCount
		resp.Rows = report.Written
		resp.Errors = r.ErrorCount
		resp.Retries = r.RetryCount
		resp.FailedURLs = r.FailedURLs
		resp.Missing = report.Completeness.Missing
		resp.Output = report.Output
		resp.DurationMilli = r.Duration().Milliseconds()
	}
	if err != nil {
		resp.Error = err.Error()
		return c.JSON(http.StatusInternalServerError, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
