package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a store backed by an SQLite file or an in-memory database.
type SQLiteStore struct {
	sqlDirectory
}

// NewSQLiteStore opens the database named by the DSN, creating its parent
// directory when it is a file, and applies migrations.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	db, err := openSQL("SQLiteStore", DriverSQLite, opts, sqliteMigrations, func(db *sql.DB) {
		// One connection so an in-memory database is shared by every query.
		db.SetMaxOpenConns(1)
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{sqlDirectory{db: db, name: "SQLiteStore"}}, nil
}

// ensureSQLiteDir creates the directory holding a file-backed database.
func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}
