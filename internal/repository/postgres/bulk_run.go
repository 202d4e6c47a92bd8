// Package postgres holds the PostgreSQL implementations of the gateway's
// repositories.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/masivos/admin-gateway/internal/bulk"
)

// BulkRunSchema creates the bulk run journal table.
const BulkRunSchema = `
CREATE TABLE IF NOT EXISTS bulk_runs (
	id          UUID PRIMARY KEY,
	op          TEXT NOT NULL,
	list_id     TEXT NOT NULL DEFAULT '',
	requested   INTEGER NOT NULL,
	applied     TEXT[] NOT NULL DEFAULT '{}',
	failed_id   TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
)`

// BulkRunRepo implements bulk.Journal against PostgreSQL.
type BulkRunRepo struct{ db *sql.DB }

// NewBulkRunRepo creates a Postgres-backed bulk run journal.
func NewBulkRunRepo(db *sql.DB) *BulkRunRepo { return &BulkRunRepo{db: db} }

// EnsureSchema creates the journal table when missing.
func (r *BulkRunRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, BulkRunSchema); err != nil {
		return fmt.Errorf("create bulk_runs: %w", err)
	}
	return nil
}

func (r *BulkRunRepo) Start(ctx context.Context, run *bulk.Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bulk_runs (id, op, list_id, requested, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, string(run.Op), run.ListID, run.Requested, string(run.Status), run.StartedAt)
	if err != nil {
		return fmt.Errorf("start bulk run: %w", err)
	}
	return nil
}

func (r *BulkRunRepo) RecordApplied(ctx context.Context, runID, contactID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bulk_runs SET applied = array_append(applied, $2) WHERE id = $1`,
		runID, contactID,
	)
	if err != nil {
		return fmt.Errorf("record applied: %w", err)
	}
	return nil
}

func (r *BulkRunRepo) Finish(ctx context.Context, run *bulk.Run) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bulk_runs
		SET applied = $2, failed_id = $3, error = $4, status = $5, finished_at = $6
		WHERE id = $1
	`, run.ID, pq.Array(run.Applied), run.FailedID, run.Error, string(run.Status), run.FinishedAt)
	if err != nil {
		return fmt.Errorf("finish bulk run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return bulk.ErrRunNotFound
	}
	return nil
}

func (r *BulkRunRepo) Get(ctx context.Context, runID string) (*bulk.Run, error) {
	run := &bulk.Run{}
	var op, status string
	var finished sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, op, list_id, requested, applied, failed_id, error, status, started_at, finished_at
		FROM bulk_runs
		WHERE id = $1
	`, runID).Scan(
		&run.ID, &op, &run.ListID, &run.Requested, pq.Array(&run.Applied),
		&run.FailedID, &run.Error, &status, &run.StartedAt, &finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bulk.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bulk run: %w", err)
	}
	run.Op = bulk.Op(op)
	run.Status = bulk.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	if run.Applied == nil {
		run.Applied = []string{}
	}
	return run, nil
}
