package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-shows/models"
)

// ErrNoData is reported by Validate when nothing was written.
var ErrNoData = errors.New("no data written")

// CSVWriter writes rows to CSV. The file and its header are created on the
// first write, so a run without rows leaves no file behind.
type CSVWriter struct {
	filename string
	columns  []string
	file     *os.File
	writer   *csv.Writer
	rows     int
	mu       sync.Mutex
}

// NewCSVWriter prepares a CSV writer with the given column order. Without
// columns, the sorted field names of the first batch are used.
func NewCSVWriter(filename string, columns []string) (*CSVWriter, error) {
	if filename == "" {
		return nil, fmt.Errorf("csv filename cannot be empty")
	}
	return &CSVWriter{filename: filename, columns: columns}, nil
}

func (cw *CSVWriter) open(first *models.Row) error {
	if err := ensureDir(cw.filename); err != nil {
		return err
	}

	f, err := os.Create(cw.filename)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}

	if len(cw.columns) == 0 {
		cw.columns = append([]string{"site"}, first.FieldNames()...)
		cw.columns = append(cw.columns, "scraped_at")
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(cw.columns); err != nil {
		f.Close()
		return fmt.Errorf("write csv header: %w", err)
	}

	cw.file = f
	cw.writer = writer
	return nil
}

// Write appends rows to the CSV output.
func (cw *CSVWriter) Write(rows []*models.Row) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}
	if cw.file == nil {
		if err := cw.open(rows[0]); err != nil {
			return err
		}
	}

	record := make([]string, len(cw.columns))
	for _, row := range rows {
		for i, col := range cw.columns {
			record[i] = row.Get(col)
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.rows++
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.file == nil {
		return nil
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures at least one record was written.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.rows == 0 {
		return fmt.Errorf("csv %s: %w", cw.filename, ErrNoData)
	}
	return nil
}

// Filename returns the output path.
func (cw *CSVWriter) Filename() string {
	return cw.filename
}

// JSONWriter writes newline-delimited JSON records, created on first write.
type JSONWriter struct {
	filename string
	file     *os.File
	writer   *bufio.Writer
	encoder  *json.Encoder
	rows     int
	mu       sync.Mutex
}

// NewJSONWriter prepares the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if filename == "" {
		return nil, fmt.Errorf("json filename cannot be empty")
	}
	return &JSONWriter{filename: filename}, nil
}

func (jw *JSONWriter) open() error {
	if err := ensureDir(jw.filename); err != nil {
		return err
	}

	f, err := os.Create(jw.filename)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}

	jw.file = f
	jw.writer = bufio.NewWriter(f)
	jw.encoder = json.NewEncoder(jw.writer)
	return nil
}

// Write appends rows in JSONL format.
func (jw *JSONWriter) Write(rows []*models.Row) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}
	if jw.file == nil {
		if err := jw.open(); err != nil {
			return err
		}
	}

	for _, row := range rows {
		if err := jw.encoder.Encode(row); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.rows++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.file == nil {
		return nil
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures at least one record was written.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.rows == 0 {
		return fmt.Errorf("json %s: %w", jw.filename, ErrNoData)
	}
	return nil
}

// Filename returns the output path.
func (jw *JSONWriter) Filename() string {
	return jw.filename
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
