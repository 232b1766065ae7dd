package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// Schema for the attempts table. Applied on connect so a fresh database is
// usable without a separate migration step.
const attemptsSchema = `
CREATE TABLE IF NOT EXISTS submission_attempts (
	id         UUID PRIMARY KEY,
	job_id     TEXT NOT NULL,
	state      TEXT NOT NULL,
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS submission_attempts_state_idx ON submission_attempts (state);
CREATE INDEX IF NOT EXISTS submission_attempts_job_idx ON submission_attempts (job_id);
`

// Postgres is a durable Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres establishes a connection pool and ensures the schema exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, attemptsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply attempts schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Save upserts the full attempt record as JSONB.
func (p *Postgres) Save(ctx context.Context, attempt *types.SubmissionAttempt) error {
	record, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO submission_attempts (id, job_id, state, record, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET state = $3, record = $4, updated_at = $6`,
		attempt.ID, attempt.JobID, attempt.State, record, attempt.CreatedAt, attempt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// Get loads one attempt record.
func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (*types.SubmissionAttempt, error) {
	var record []byte
	err := p.pool.QueryRow(ctx,
		`SELECT record FROM submission_attempts WHERE id = $1`, id,
	).Scan(&record)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to get attempt %s: %w", id, err)
	}
	var attempt types.SubmissionAttempt
	if err := json.Unmarshal(record, &attempt); err != nil {
		return nil, fmt.Errorf("failed to decode attempt %s: %w", id, err)
	}
	return &attempt, nil
}

// ListByState loads all attempts in the given state; used at startup to
// restore parked approval waits.
func (p *Postgres) ListByState(ctx context.Context, state types.AttemptState) ([]*types.SubmissionAttempt, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT record FROM submission_attempts WHERE state = $1 ORDER BY created_at`, state,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts by state %s: %w", state, err)
	}
	defer rows.Close()

	var out []*types.SubmissionAttempt
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		var attempt types.SubmissionAttempt
		if err := json.Unmarshal(record, &attempt); err != nil {
			return nil, fmt.Errorf("failed to decode attempt record: %w", err)
		}
		out = append(out, &attempt)
	}
	return out, rows.Err()
}
