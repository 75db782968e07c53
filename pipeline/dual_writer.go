// Package pipeline validates, de-duplicates and persists scraped rows.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-shows/models"
)

type target struct {
	format string
	writer interface {
		OutputWriter
		Filename() string
	}
}

// DualWriter mirrors every batch into a CSV file and a JSONL file.
type DualWriter struct {
	mu      sync.Mutex
	targets []target
}

// NewDualWriter writes CSV rows with the given columns to csvFilename and
// JSON lines to jsonFilename.
func NewDualWriter(csvFilename, jsonFilename string, columns []string) (*DualWriter, error) {
	csvOut, err := NewCSVWriter(csvFilename, columns)
	if err != nil {
		return nil, fmt.Errorf("csv target: %w", err)
	}
	jsonOut, err := NewJSONWriter(jsonFilename)
	if err != nil {
		return nil, fmt.Errorf("json target: %w", err)
	}
	return &DualWriter{targets: []target{
		{format: "csv", writer: csvOut},
		{format: "json", writer: jsonOut},
	}}, nil
}

// Write stops at the first target that fails.
func (dw *DualWriter) Write(rows []*models.Row) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	for _, t := range dw.targets {
		if err := t.writer.Write(rows); err != nil {
			return fmt.Errorf("%s write: %w", t.format, err)
		}
	}
	return nil
}

func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.each("close", OutputWriter.Close)
}

// Validate reports ErrNoData when neither file received rows.
func (dw *DualWriter) Validate() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.each("validate", OutputWriter.Validate)
}

func (dw *DualWriter) each(op string, fn func(OutputWriter) error) error {
	var errs []error
	for _, t := range dw.targets {
		if err := fn(t.writer); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", t.format, op, err))
		}
	}
	return errors.Join(errs...)
}

// Filename returns both output paths.
func (dw *DualWriter) Filename() string {
	names := make([]string, len(dw.targets))
	for i, t := range dw.targets {
		names[i] = t.writer.Filename()
	}
	return strings.Join(names, " + ")
}
