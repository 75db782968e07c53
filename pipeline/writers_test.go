package pipeline

import (
	"bufio"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-shows/models"
)

func testRows() []*models.Row {
	scrapedAt := time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC)
	return []*models.Row{
		{
			Site:      "broadway",
			Fields:    map[string]string{"title": "Wicked", "date": "2025-06-28", "time": "7:00 PM", "status": "upcoming"},
			ScrapedAt: scrapedAt,
		},
		{
			Site:      "broadway",
			Fields:    map[string]string{"title": "Hamilton", "date": models.NA, "time": models.NA, "status": models.NA},
			ScrapedAt: scrapedAt,
		},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "broadway.csv")

	writer, err := NewCSVWriter(path, []string{"title", "date", "time", "status", "price"})
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.Write(testRows()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "title" || records[0][4] != "price" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][0] != "Wicked" || records[1][1] != "2025-06-28" {
		t.Fatalf("unexpected first record: %v", records[1])
	}
	// Columns the row lacks are written as N/A.
	if records[1][4] != models.NA || records[2][1] != models.NA {
		t.Fatalf("expected N/A defaults, got %v / %v", records[1], records[2])
	}
}

func TestCSVWriterDerivesColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	writer, err := NewCSVWriter(path, nil)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(testRows()[:1]); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := []string{"site", "date", "status", "time", "title", "scraped_at"}
	for i, col := range want {
		if records[0][i] != col {
			t.Fatalf("header = %v, want %v", records[0], want)
		}
	}
	if records[1][5] != "2025-11-04T13:09:13Z" {
		t.Fatalf("scraped_at = %q", records[1][5])
	}
}

func TestWritersCreateNoFileWithoutRows(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "empty.csv")
	jsonPath := filepath.Join(dir, "empty.jsonl")
	dbPath := filepath.Join(dir, "empty.db")

	csvWriter, _ := NewCSVWriter(csvPath, []string{"title"})
	jsonWriter, _ := NewJSONWriter(jsonPath)
	sqliteWriter, _ := NewSQLiteWriter(dbPath)

	for _, w := range []OutputWriter{csvWriter, jsonWriter, sqliteWriter} {
		if err := w.Write(nil); err != nil {
			t.Fatalf("write nothing: %v", err)
		}
		if err := w.Validate(); !errors.Is(err, ErrNoData) {
			t.Fatalf("validate = %v, want ErrNoData", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	for _, path := range []string{csvPath, jsonPath, dbPath} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s should not exist, stat err = %v", path, err)
		}
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broadway.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.Write(testRows()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.Row
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.Site != "broadway" {
			t.Fatalf("site = %q, want broadway", decoded.Site)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 2 {
		t.Fatalf("json lines=%d, want 2", count)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "broadway.csv")
	jsonPath := filepath.Join(dir, "broadway.jsonl")

	writer, err := NewDualWriter(csvPath, jsonPath, []string{"title", "date"})
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write(testRows()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestSQLiteWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broadway.db")

	writer, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("create sqlite writer: %v", err)
	}
	if err := writer.Write(testRows()); err != nil {
		t.Fatalf("write sqlite: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate sqlite: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT count(*) FROM rows WHERE site = ?", "broadway").Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("rows=%d, want 2", count)
	}

	var data string
	if err := db.QueryRow("SELECT data FROM rows ORDER BY id LIMIT 1").Scan(&data); err != nil {
		t.Fatalf("select data: %v", err)
	}
	var decoded models.Row
	if err := json.Unmarshal([]byte(data), &decoded); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if decoded.Get("title") != "Wicked" {
		t.Fatalf("title = %q, want Wicked", decoded.Get("title"))
	}
}
