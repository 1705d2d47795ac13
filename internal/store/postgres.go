package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/pr-reviewer/internal/review"
)

// Postgres is a durable Store backed by a PostgreSQL connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

const jobsSchema = `
CREATE TABLE IF NOT EXISTS review_jobs (
	id               UUID PRIMARY KEY,
	status           TEXT NOT NULL,
	current_step     TEXT NOT NULL DEFAULT '',
	reference        TEXT NOT NULL,
	token            TEXT NOT NULL,
	post_to_host     BOOLEAN NOT NULL DEFAULT FALSE,
	review_template  TEXT NOT NULL DEFAULT '',
	result           JSONB,
	error            TEXT NOT NULL DEFAULT '',
	error_kind       TEXT NOT NULL DEFAULT '',
	cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// ConnectPostgres establishes a connection pool and ensures the jobs table
// exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, jobsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure jobs schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Create inserts a new job in state QUEUED and returns its id.
func (p *Postgres) Create(ctx context.Context, input Input) (string, error) {
	id := uuid.New().String()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO review_jobs (id, status, reference, token, post_to_host, review_template)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, StatusQueued, input.Reference, input.Token, input.PostToHost, input.ReviewTemplate,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return id, nil
}

// Get retrieves one job by id.
func (p *Postgres) Get(ctx context.Context, id string) (*Job, error) {
	var (
		job        Job
		resultJSON []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, status, current_step, reference, token, post_to_host, review_template,
		        result, error, error_kind, cancel_requested, created_at, updated_at
		 FROM review_jobs WHERE id = $1`,
		id,
	).Scan(
		&job.ID, &job.Status, &job.CurrentStep,
		&job.Input.Reference, &job.Input.Token, &job.Input.PostToHost, &job.Input.ReviewTemplate,
		&resultJSON, &job.Error, &job.ErrorKind, &job.CancelRequested,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if len(resultJSON) > 0 {
		var result review.Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}

// Update applies a patch in a single UPDATE statement. The status guard in the
// WHERE clause keeps transitions monotonic: a job that already reached a
// terminal state is never modified.
func (p *Postgres) Update(ctx context.Context, id string, patch Patch) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.CurrentStep != nil {
		add("current_step", *patch.CurrentStep)
	}
	if patch.Result != nil {
		resultJSON, err := json.Marshal(patch.Result)
		if err != nil {
			return fmt.Errorf("failed to encode job result: %w", err)
		}
		add("result", resultJSON)
	}
	if patch.Error != nil {
		add("error", *patch.Error)
	}
	if patch.ErrorKind != nil {
		add("error_kind", *patch.ErrorKind)
	}
	if patch.CancelRequested != nil {
		add("cancel_requested", *patch.CancelRequested)
	}

	query := fmt.Sprintf(
		`UPDATE review_jobs SET %s WHERE id = $1 AND status NOT IN ($%d, $%d)`,
		strings.Join(sets, ", "), len(args)+1, len(args)+2,
	)
	args = append(args, StatusSucceeded, StatusFailed)

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := p.Get(ctx, id)
		if err != nil {
			return err
		}
		return &TerminalStateError{ID: id, Status: existing.Status}
	}
	return nil
}
