package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerDuplicatesToLogFile(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		expected string
	}{
		{name: "json", format: "json", expected: `"msg":"scrape finished"`},
		{name: "text", format: "TEXT", expected: `msg="scrape finished"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_FORMAT", tt.format)
			dir := t.TempDir()
			console, err := os.Create(filepath.Join(dir, "console.out"))
			require.NoError(t, err)
			defer console.Close()

			logDir := filepath.Join(dir, "log")
			logger, closer, err := newLogger(console, logDir, false)
			require.NoError(t, err)
			logger.Info("scrape finished")
			logger.Debug("hidden below info")
			require.NoError(t, closer.Close())

			logged, err := os.ReadFile(filepath.Join(logDir, logFile))
			require.NoError(t, err)
			printed, err := os.ReadFile(console.Name())
			require.NoError(t, err)

			assert.Contains(t, string(logged), tt.expected)
			assert.Equal(t, string(printed), string(logged))
			assert.NotContains(t, string(logged), "hidden below info")
		})
	}
}

func TestNewLoggerAppendsAcrossRuns(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	dir := t.TempDir()
	console, err := os.Create(filepath.Join(dir, "console.out"))
	require.NoError(t, err)
	defer console.Close()

	for _, msg := range []string{"first run", "second run"} {
		logger, closer, err := newLogger(console, dir, true)
		require.NoError(t, err)
		logger.Debug(msg)
		require.NoError(t, closer.Close())
	}

	logged, err := os.ReadFile(filepath.Join(dir, logFile))
	require.NoError(t, err)
	assert.Contains(t, string(logged), "first run")
	assert.Contains(t, string(logged), "second run")
}

func TestNewLoggerConsoleOnly(t *testing.T) {
	console, err := os.Create(filepath.Join(t.TempDir(), "console.out"))
	require.NoError(t, err)
	defer console.Close()

	logger, closer, err := newLogger(console, "", false)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.NoError(t, closer.Close())
}
