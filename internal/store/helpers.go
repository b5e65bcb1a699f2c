package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// ErrDSNNotSet is returned when a SQL backend is opened without a DSN.
var ErrDSNNotSet = errors.New("database DSN not set")

// openSQL opens driver with the configured DSN, applies tune and migrations,
// and returns a pinged connection pool.
func openSQL(name, driver string, opts []Option, migrations string, tune func(*sql.DB)) (*sql.DB, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, ErrDSNNotSet
	}
	if driver == DriverSQLite {
		if err := ensureSQLiteDir(cfg.DSN); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	tune(db)
	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error(name+" ping failed", "error", err)
		return nil, fmt.Errorf("failed to connect %s: %w", name, err)
	}
	if _, err := db.Exec(migrations); err != nil {
		db.Close()
		slog.Error(name+" migrations failed", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug(name+" opened", "driver", driver)
	return db, nil
}

// sqlDirectory implements the directory queries shared by the SQL backends.
// Both SQLite and Postgres accept $N placeholders and ON CONFLICT upserts.
type sqlDirectory struct {
	db        *sql.DB
	name      string // backend name used in log messages
	claimLock string // row locking clause appended when claiming jobs
}

func (d *sqlDirectory) RecordMember(ctx context.Context, m models.Member) error {
	if err := validateMember(m); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO members (channel_id, id, name) VALUES ($1, $2, $3)
		ON CONFLICT (channel_id, id) DO UPDATE SET
			name = CASE WHEN excluded.name = '' THEN members.name ELSE excluded.name END,
			seen_at = CURRENT_TIMESTAMP`,
		m.ChannelID, m.ID, m.Name)
	if err != nil {
		slog.Error(d.name+" RecordMember failed", "error", err, "id", m.ID, "channel", m.ChannelID)
		return fmt.Errorf("failed to record member %s: %w", m.ID, err)
	}
	return nil
}

func (d *sqlDirectory) AddChannel(ctx context.Context, c models.Channel) error {
	if err := validateEntry("channel", c.ID); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO channels (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		c.ID, c.Name)
	if err != nil {
		slog.Error(d.name+" AddChannel failed", "error", err, "id", c.ID)
		return fmt.Errorf("failed to add channel %s: %w", c.ID, err)
	}
	return nil
}

func (d *sqlDirectory) AddRole(ctx context.Context, r models.Role) error {
	if err := validateEntry("role", r.ID); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO roles (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		r.ID, r.Name)
	if err != nil {
		slog.Error(d.name+" AddRole failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to add role %s: %w", r.ID, err)
	}
	return nil
}

func (d *sqlDirectory) Members(ctx context.Context, channelID string) ([]models.Member, error) {
	query := `SELECT channel_id, id, name FROM members ORDER BY channel_id, id`
	args := []any{}
	if channelID != "" {
		query = `SELECT channel_id, id, name FROM members WHERE channel_id = $1 ORDER BY id`
		args = append(args, channelID)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error(d.name+" Members query failed", "error", err, "channel", channelID)
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ChannelID, &m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate member rows: %w", err)
	}
	return members, nil
}

func (d *sqlDirectory) Channels(ctx context.Context) ([]models.Channel, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name FROM channels ORDER BY id`)
	if err != nil {
		slog.Error(d.name+" Channels query failed", "error", err)
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

func (d *sqlDirectory) Roles(ctx context.Context) ([]models.Role, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name FROM roles ORDER BY id`)
	if err != nil {
		slog.Error(d.name+" Roles query failed", "error", err)
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	roles := []models.Role{}
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("failed to scan role row: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (d *sqlDirectory) Close() error {
	return d.db.Close()
}
