package pipeline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aluiziolira/go-scrape-shows/models"
	"github.com/aluiziolira/go-scrape-shows/parser"
)

const createRows = `CREATE TABLE IF NOT EXISTS rows (
	id integer not null primary key,
	site text not null,
	scraped_at text not null,
	fingerprint text not null,
	data text not null
);`

const insertRow = "INSERT INTO rows(site, scraped_at, fingerprint, data) VALUES(?, ?, ?, ?);"

// SQLiteWriter stores each row as a JSON document in a SQLite table. The
// database file is created on the first write.
type SQLiteWriter struct {
	database string
	db       *sql.DB
	rows     int

	// The sqlite driver does not allow concurrent writes.
	mu sync.Mutex
}

// NewSQLiteWriter prepares a writer for the database file.
func NewSQLiteWriter(database string) (*SQLiteWriter, error) {
	if database == "" {
		return nil, fmt.Errorf("sqlite database file not set")
	}
	return &SQLiteWriter{database: database}, nil
}

func (sw *SQLiteWriter) open() error {
	if err := ensureDir(sw.database); err != nil {
		return err
	}
	db, err := sql.Open("sqlite3", sw.database)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", sw.database, err)
	}
	if _, err := db.Exec(createRows); err != nil {
		db.Close()
		return fmt.Errorf("create table rows: %w", err)
	}
	sw.db = db
	return nil
}

// Write inserts rows in one transaction.
func (sw *SQLiteWriter) Write(rows []*models.Row) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}
	if sw.db == nil {
		if err := sw.open(); err != nil {
			return err
		}
	}

	tx, err := sw.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(insertRow)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode row: %w", err)
		}
		fp := strconv.FormatUint(parser.Fingerprint(row), 16)
		if _, err := stmt.Exec(row.Site, row.ScrapedAt.Format(time.RFC3339), fp, string(data)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rows: %w", err)
	}
	sw.rows += len(rows)
	return nil
}

// Close releases the database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.db == nil {
		return nil
	}
	return sw.db.Close()
}

// Validate ensures at least one row was stored.
func (sw *SQLiteWriter) Validate() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.rows == 0 {
		return fmt.Errorf("sqlite %s: %w", sw.database, ErrNoData)
	}
	return nil
}

// Filename returns the database path.
func (sw *SQLiteWriter) Filename() string {
	return sw.database
}
