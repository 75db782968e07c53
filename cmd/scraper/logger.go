package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-scrape-shows/config"
)

const logFile = "scrape.log"

// newLogger writes every record both to the console and to
// <logDir>/scrape.log, appending across runs. The caller closes the file.
// LOG_FORMAT=text|json overrides the terminal detection.
func newLogger(console *os.File, logDir string, verbose bool) (*slog.Logger, io.Closer, error) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var (
		out    io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(logDir, logFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(console, f)
		closer = f
	}

	opts := &slog.HandlerOptions{Level: level}
	useText := isTerminal(console)
	if format, ok := config.EnvString("LOG_FORMAT"); ok {
		useText = strings.EqualFold(format, "text")
	}
	var handler slog.Handler
	if useText {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
