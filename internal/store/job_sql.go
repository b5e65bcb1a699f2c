package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `id, kind, run_at, payload_json, status, attempt, max_attempts, last_error, locked_at, dedupe_key, created_at, updated_at`

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Kind, &j.RunAt, &j.PayloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		t := lockedAt.Time
		j.LockedAt = &t
	}
	return j, nil
}

func (d *sqlDirectory) EnqueueJob(ctx context.Context, kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	if dedupeKey != "" {
		var existingID string
		err := d.db.QueryRowContext(ctx,
			`SELECT id FROM jobs WHERE dedupe_key = $1 AND status NOT IN ('done', 'failed', 'canceled')`,
			dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug(d.name+".EnqueueJob: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("dedupe check failed: %w", err)
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, run_at, payload_json, status, attempt, max_attempts, last_error, dedupe_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'queued', 0, $5, '', $6, $7, $7)`,
		id, kind, runAt.UTC(), payloadJSON, DefaultMaxAttempts, nilIfEmpty(dedupeKey), now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue job failed: %w", err)
	}
	slog.Debug(d.name+".EnqueueJob", "id", id, "kind", kind, "runAt", runAt)
	return id, nil
}

func (d *sqlDirectory) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs begin failed: %w", err)
	}
	defer tx.Rollback()

	now = now.UTC()
	rows, err := tx.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = 'queued' AND run_at <= $1 ORDER BY run_at ASC LIMIT $2`+d.claimLock,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs query failed: %w", err)
	}
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job failed: %w", err)
		}
		jobs = append(jobs, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due jobs iteration failed: %w", err)
	}

	for i := range jobs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = 'running', locked_at = $1, updated_at = $1 WHERE id = $2`,
			now, jobs[i].ID,
		); err != nil {
			return nil, fmt.Errorf("mark job running failed: %w", err)
		}
		jobs[i].Status = JobStatusRunning
		locked := now
		jobs[i].LockedAt = &locked
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim due jobs commit failed: %w", err)
	}
	return jobs, nil
}

func (d *sqlDirectory) CompleteJob(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'done', locked_at = NULL, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("complete job failed: %w", err)
	}
	return nil
}

func (d *sqlDirectory) FailJob(ctx context.Context, id string, errMsg string, nextRunAt time.Time) error {
	var attempt, maxAttempts int
	err := d.db.QueryRowContext(ctx, `SELECT attempt, max_attempts FROM jobs WHERE id = $1`, id).Scan(&attempt, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("fail job lookup failed: %w", err)
	}

	now := time.Now().UTC()
	attempt++
	if attempt >= maxAttempts {
		_, err = d.db.ExecContext(ctx,
			`UPDATE jobs SET status = 'failed', attempt = $1, last_error = $2, locked_at = NULL, updated_at = $3 WHERE id = $4`,
			attempt, errMsg, now, id,
		)
	} else {
		_, err = d.db.ExecContext(ctx,
			`UPDATE jobs SET status = 'queued', attempt = $1, last_error = $2, run_at = $3, locked_at = NULL, updated_at = $4 WHERE id = $5`,
			attempt, errMsg, nextRunAt.UTC(), now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("fail job update failed: %w", err)
	}
	return nil
}

func (d *sqlDirectory) CancelJob(ctx context.Context, id string) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'canceled', locked_at = NULL, updated_at = $1 WHERE id = $2 AND status IN ('queued', 'running')`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("cancel job failed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, err := d.GetJob(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (d *sqlDirectory) RequeueStaleRunningJobs(ctx context.Context, staleBefore time.Time) (int, error) {
	result, err := d.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'queued', locked_at = NULL, updated_at = $1 WHERE status = 'running' AND locked_at < $2`,
		time.Now().UTC(), staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info(d.name+".RequeueStaleRunningJobs", "requeued", n)
	}
	return int(n), nil
}

func (d *sqlDirectory) GetJob(ctx context.Context, id string) (*Job, error) {
	j, err := scanJob(d.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job failed: %w", err)
	}
	return &j, nil
}

func (d *sqlDirectory) RecordInbound(ctx context.Context, channelID, messageID string) (bool, error) {
	result, err := d.db.ExecContext(ctx,
		`INSERT INTO inbound_messages (channel_id, message_id, received_at) VALUES ($1, $2, $3)
		 ON CONFLICT (channel_id, message_id) DO NOTHING`,
		channelID, messageID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}
