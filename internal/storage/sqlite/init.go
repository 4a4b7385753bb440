package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const dirPerm = 0o755

// InitDB opens the SQLite database at path, creating it and the runs table if needed.
func InitDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY,
		run_id TEXT UNIQUE,
		input TEXT,
		title TEXT,
		output_path TEXT,
		status TEXT,
		error TEXT,
		started_at TEXT,
		finished_at TEXT
	)`)
	if err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}
