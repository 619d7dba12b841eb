package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// Embedded and server SQL drivers for the sql backend.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id       TEXT PRIMARY KEY,
	payload_json TEXT NOT NULL,
	status       TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL,
	last_error   TEXT,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS dlq (
	job_id       TEXT PRIMARY KEY,
	payload_json TEXT NOT NULL,
	error        TEXT,
	attempts     INTEGER NOT NULL,
	created_at   TIMESTAMP NOT NULL
);
`

// SQLBackend stores jobs in an embedded sqlite database or a postgres
// server, selected by driver name.
type SQLBackend struct {
	db     *sql.DB
	driver string
}

// NewSQLBackend opens the database and ensures the schema exists.
func NewSQLBackend(cfg config.SQLQueueConfig) (*SQLBackend, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	// sqlite serializes writes; a single connection avoids table locks
	// with the in-memory DSN.
	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	backend := &SQLBackend{db: db, driver: cfg.Driver}
	if err := backend.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}

func (b *SQLBackend) migrate() error {
	for _, stmt := range strings.Split(sqlSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create queue schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (b *SQLBackend) rebind(query string) string {
	if b.driver != "postgres" {
		return query
	}
	var out strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&out, "$%d", n)
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

func (b *SQLBackend) Enqueue(ctx context.Context, job Job) error {
	now := time.Now().UTC()
	_, err := b.db.ExecContext(ctx, b.rebind(
		`INSERT INTO jobs (job_id, payload_json, status, attempts, max_attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		job.ID, string(job.Payload), StatusQueued, job.Attempts, job.MaxAttempts, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// ClaimNext selects the oldest queued job and flips it to running inside
// one transaction, so concurrent workers never claim the same job.
func (b *SQLBackend) ClaimNext(ctx context.Context) (*Job, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, b.rebind(
		`SELECT job_id, payload_json, attempts, max_attempts
		 FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1`),
		StatusQueued,
	)

	var job Job
	var payload string
	if err := row.Scan(&job.ID, &payload, &job.Attempts, &job.MaxAttempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan queued job: %w", err)
	}
	job.Payload = []byte(payload)
	job.Attempts++

	if _, err := tx.ExecContext(ctx, b.rebind(
		`UPDATE jobs SET status = ?, attempts = ?, updated_at = ? WHERE job_id = ?`),
		StatusRunning, job.Attempts, time.Now().UTC(), job.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return &job, nil
}

// MarkDone removes the finished job; the jobs table only holds work that
// is queued or running.
func (b *SQLBackend) MarkDone(ctx context.Context, job *Job) error {
	_, err := b.db.ExecContext(ctx, b.rebind(
		`DELETE FROM jobs WHERE job_id = ?`), job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize job %s: %w", job.ID, err)
	}
	return nil
}

func (b *SQLBackend) MarkFailed(ctx context.Context, job *Job, cause error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin dead-letter transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, b.rebind(
		`INSERT INTO dlq (job_id, payload_json, error, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?)`),
		job.ID, string(job.Payload), cause.Error(), job.Attempts, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
	}

	if _, err := tx.ExecContext(ctx, b.rebind(
		`DELETE FROM jobs WHERE job_id = ?`), job.ID,
	); err != nil {
		return fmt.Errorf("failed to remove dead-lettered job %s: %w", job.ID, err)
	}

	return tx.Commit()
}

func (b *SQLBackend) Requeue(ctx context.Context, job *Job, cause error) error {
	_, err := b.db.ExecContext(ctx, b.rebind(
		`UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE job_id = ?`),
		StatusQueued, cause.Error(), time.Now().UTC(), job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
	}
	return nil
}

// DeadLetters lists dead-lettered jobs, oldest first.
func (b *SQLBackend) DeadLetters(ctx context.Context) ([]Job, error) {
	rows, err := b.db.QueryContext(ctx, b.rebind(
		`SELECT job_id, payload_json, attempts FROM dlq ORDER BY created_at ASC`))
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var job Job
		var payload string
		if err := rows.Scan(&job.ID, &payload, &job.Attempts); err != nil {
			return nil, err
		}
		job.Payload = []byte(payload)
		out = append(out, job)
	}
	return out, rows.Err()
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
