package bulk

import (
	"context"
	"time"
)

// Op names a bulk operation.
type Op string

const (
	OpAddToList Op = "add_to_list"
	OpDelete    Op = "delete_contacts"
)

// RunStatus is the state of a journaled run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is the journal record of one bulk run.
type Run struct {
	ID         string     `json:"id"`
	Op         Op         `json:"op"`
	ListID     string     `json:"listId,omitempty"`
	Requested  int        `json:"requested"`
	Applied    []string   `json:"applied"`
	FailedID   string     `json:"failedId,omitempty"`
	Error      string     `json:"error,omitempty"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Journal records bulk runs.
type Journal interface {
	// Start inserts a new running run.
	Start(ctx context.Context, run *Run) error

	// RecordApplied appends a contact id to the applied ids of a run.
	RecordApplied(ctx context.Context, runID, contactID string) error

	// Finish stores the final status, failed id and error of a run.
	Finish(ctx context.Context, run *Run) error

	// Get returns a run. Returns ErrRunNotFound if it doesn't exist.
	Get(ctx context.Context, runID string) (*Run, error)
}

// NopJournal discards every record. It is used when no database is configured.
type NopJournal struct{}

func (NopJournal) Start(context.Context, *Run) error                   { return nil }
func (NopJournal) RecordApplied(context.Context, string, string) error { return nil }
func (NopJournal) Finish(context.Context, *Run) error                  { return nil }
func (NopJournal) Get(context.Context, string) (*Run, error)           { return nil, ErrRunNotFound }
