package bulk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/masivos/admin-gateway/internal/pkg/distlock"
	"github.com/masivos/admin-gateway/internal/pkg/logger"
	"github.com/masivos/admin-gateway/internal/pkg/metrics"
)

// Contacts is the part of the service API client bulk runs call.
type Contacts interface {
	AddContactToList(ctx context.Context, contactID, listID string) error
	DeleteContact(ctx context.Context, id string) error
}

// Result reports what a run did. Applied holds the ids processed
// successfully, in call order for sequential runs. FailedID and Err are set
// when the run stopped on a failure.
type Result struct {
	RunID    string   `json:"runId"`
	ListID   string   `json:"listId,omitempty"`
	Applied  []string `json:"applied"`
	FailedID string   `json:"failedId,omitempty"`
	Err      error    `json:"-"`
}

// Service runs bulk operations. It is safe for concurrent use.
type Service struct {
	contacts    Contacts
	locks       *distlock.Provider
	journal     Journal
	concurrency int
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithJournal sets the journal runs are recorded in.
func WithJournal(j Journal) Option {
	return func(s *Service) { s.journal = j }
}

// WithConcurrency bounds the number of parallel deletes.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a bulk service. A nil lock provider uses in-process
// locks only.
func NewService(contacts Contacts, locks *distlock.Provider, opts ...Option) *Service {
	if locks == nil {
		locks = distlock.NewProvider(nil, nil, 0)
	}
	s := &Service{
		contacts:    contacts,
		locks:       locks,
		journal:     NopJournal{},
		concurrency: 8,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// refreshEvery is how many contacts a run adds between lock refreshes.
const refreshEvery = 25

// Journal returns the journal runs are recorded in.
func (s *Service) Journal() Journal { return s.journal }

// AddContactsToList adds each contact to the list, one awaited call after
// the other. The first failure stops the run; contacts added before it stay
// in the list. The returned error is the failure, also kept in Result.Err.
func (s *Service) AddContactsToList(ctx context.Context, listID string, contactIDs []string) (*Result, error) {
	if len(contactIDs) == 0 {
		return nil, ErrNoContacts
	}

	lock := s.locks.Lock("bulk:list:" + listID)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("locking list %s: %w", listID, err)
	}
	if !ok {
		return nil, ErrListBusy
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("bulk: releasing list lock", "list_id", listID, "error", err)
		}
	}()

	run, err := s.start(ctx, OpAddToList, listID, len(contactIDs))
	if err != nil {
		return nil, err
	}
	res := &Result{RunID: run.ID, ListID: listID, Applied: []string{}}

	for _, id := range contactIDs {
		if err := ctx.Err(); err != nil {
			res.FailedID, res.Err = id, err
			break
		}
		if err := s.contacts.AddContactToList(ctx, id, listID); err != nil {
			metrics.BulkOperations.WithLabelValues(string(OpAddToList), "error").Inc()
			res.FailedID = id
			res.Err = fmt.Errorf("adding contact %s to list %s: %w", id, listID, err)
			break
		}
		metrics.BulkOperations.WithLabelValues(string(OpAddToList), "ok").Inc()
		res.Applied = append(res.Applied, id)
		if err := s.journal.RecordApplied(ctx, run.ID, id); err != nil {
			logger.Warn("bulk: journal append failed", "run_id", run.ID, "contact_id", id, "error", err)
		}
		if r, ok := lock.(distlock.Refresher); ok && len(res.Applied)%refreshEvery == 0 {
			if err := r.Refresh(ctx); err != nil {
				logger.Warn("bulk: refreshing list lock", "run_id", run.ID, "list_id", listID, "error", err)
			}
		}
	}

	s.finish(ctx, run, res)
	if res.Err != nil {
		logger.Warn("bulk: add to list stopped",
			"run_id", run.ID, "list_id", listID,
			"applied", len(res.Applied), "requested", len(contactIDs),
			"failed_id", res.FailedID, "error", res.Err)
		return res, res.Err
	}
	logger.Info("bulk: add to list completed", "run_id", run.ID, "list_id", listID, "applied", len(res.Applied))
	return res, nil
}

// DeleteContacts deletes the contacts in parallel. The first failure cancels
// the calls not yet started and is returned; deletes that already succeeded
// are not undone.
func (s *Service) DeleteContacts(ctx context.Context, contactIDs []string) (*Result, error) {
	if len(contactIDs) == 0 {
		return nil, ErrNoContacts
	}
	run, err := s.start(ctx, OpDelete, "", len(contactIDs))
	if err != nil {
		return nil, err
	}
	res := &Result{RunID: run.ID, Applied: []string{}}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range contactIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.contacts.DeleteContact(gctx, id); err != nil {
				metrics.BulkOperations.WithLabelValues(string(OpDelete), "error").Inc()
				mu.Lock()
				if res.FailedID == "" {
					res.FailedID = id
				}
				mu.Unlock()
				return fmt.Errorf("deleting contact %s: %w", id, err)
			}
			metrics.BulkOperations.WithLabelValues(string(OpDelete), "ok").Inc()
			mu.Lock()
			res.Applied = append(res.Applied, id)
			mu.Unlock()
			if err := s.journal.RecordApplied(gctx, run.ID, id); err != nil {
				logger.Warn("bulk: journal append failed", "run_id", run.ID, "contact_id", id, "error", err)
			}
			return nil
		})
	}
	res.Err = g.Wait()

	s.finish(ctx, run, res)
	if res.Err != nil {
		logger.Warn("bulk: delete stopped", "run_id", run.ID, "applied", len(res.Applied), "error", res.Err)
		return res, res.Err
	}
	return res, nil
}

func (s *Service) start(ctx context.Context, op Op, listID string, requested int) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Op:        op,
		ListID:    listID,
		Requested: requested,
		Status:    StatusRunning,
		StartedAt: s.now().UTC(),
	}
	if err := s.journal.Start(ctx, run); err != nil {
		return nil, fmt.Errorf("journaling %s run: %w", op, err)
	}
	return run, nil
}

func (s *Service) finish(ctx context.Context, run *Run, res *Result) {
	done := s.now().UTC()
	run.FinishedAt = &done
	run.Applied = res.Applied
	run.FailedID = res.FailedID
	run.Status = StatusCompleted
	if res.Err != nil {
		run.Status = StatusFailed
		run.Error = res.Err.Error()
	}
	if err := s.journal.Finish(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("bulk: journal finish failed", "run_id", run.ID, "error", err)
	}
}
