// Package persistence records pipeline runs, stage results and artifacts in SQLite.
package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"csvanalyst/pkg/logx"
)

//nolint:gochecknoglobals // Package logger for history storage
var dbLogger = logx.NewLogger("persistence")

// Open creates the database file's directory if needed, opens the database, brings its
// schema up to date and returns operations bound to it. Close the result when done.
func Open(dbPath string) (*DatabaseOperations, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := InitializeDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	dbLogger.Debug("📦 Database initialized: %s", dbPath)
	return NewDatabaseOperations(db), nil
}

// InitializeDatabase opens the SQLite database and initializes the required schema.
// This function is idempotent and safe to call multiple times.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}
