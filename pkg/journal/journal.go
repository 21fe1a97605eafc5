// Package journal records pipeline runs in a SQLite database next to the
// fetch cache, so past runs stay inspectable after their summaries rotate.
package journal

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const DefaultDBName = "journal.db"

type Journal struct {
	*sql.DB
	path string
}

// openDB opens a SQLite database at the given path
func openDB(dbPath string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return sqlDB, nil
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	sqlDB, err := openDB(path)
	if err != nil {
		return nil, err
	}

	j := &Journal{
		DB:   sqlDB,
		path: path,
	}

	// Auto-initialize schema if it doesn't exist
	if err := j.ensureSchemaExists(); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

// ensureSchemaExists checks if the schema exists and initializes it if not
func (j *Journal) ensureSchemaExists() error {
	var tableName string
	err := j.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='runs'").Scan(&tableName)

	if err == sql.ErrNoRows {
		return j.InitSchema()
	}

	if err != nil {
		return fmt.Errorf("failed to check schema: %w", err)
	}

	return nil
}

// Path returns the database file path
func (j *Journal) Path() string {
	return j.path
}

// InitSchema initializes the database schema
func (j *Journal) InitSchema() error {
	_, err := j.Exec(schema)
	return err
}
