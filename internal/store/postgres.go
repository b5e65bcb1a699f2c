package store

import (
	"database/sql"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Postgres pool limits
const (
	PostgresMaxConns        = 25
	PostgresConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a store backed by PostgreSQL. Several ArgPipe instances
// may share one database; job claims skip rows locked by another instance.
type PostgresStore struct {
	sqlDirectory
}

// NewPostgresStore connects to the configured DSN and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	db, err := openSQL("PostgresStore", DriverPostgres, opts, postgresMigrations, func(db *sql.DB) {
		db.SetMaxOpenConns(PostgresMaxConns)
		db.SetMaxIdleConns(PostgresMaxConns)
		db.SetConnMaxLifetime(PostgresConnMaxLifetime)
	})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{sqlDirectory{db: db, name: "PostgresStore", claimLock: " FOR UPDATE SKIP LOCKED"}}, nil
}
