package bulk

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masivos/admin-gateway/internal/pkg/distlock"
)

// fakeContacts records calls and fails for ids in failOn.
type fakeContacts struct {
	mu      sync.Mutex
	failOn  map[string]bool
	calls   []string
	inCall  chan struct{}
	release chan struct{}
	onCall  func(id string)
}

var errBackend = errors.New("backend returned 500")

func (f *fakeContacts) record(id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	fail := f.failOn[id]
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(id)
	}
	if fail {
		return errBackend
	}
	return nil
}

func (f *fakeContacts) AddContactToList(ctx context.Context, contactID, listID string) error {
	if f.inCall != nil {
		f.inCall <- struct{}{}
		<-f.release
	}
	return f.record(contactID)
}

func (f *fakeContacts) DeleteContact(ctx context.Context, id string) error {
	return f.record(id)
}

// memJournal is an in-memory journal for testing.
type memJournal struct {
	mu   sync.Mutex
	runs map[string]*Run
}

func newMemJournal() *memJournal { return &memJournal{runs: map[string]*Run{}} }

func (m *memJournal) Start(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	cp.Applied = []string{}
	m.runs[run.ID] = &cp
	return nil
}

func (m *memJournal) RecordApplied(_ context.Context, runID, contactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[runID]
	r.Applied = append(r.Applied, contactID)
	return nil
}

func (m *memJournal) Finish(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[run.ID]
	r.Status, r.FailedID, r.Error, r.FinishedAt = run.Status, run.FailedID, run.Error, run.FinishedAt
	return nil
}

func (m *memJournal) Get(_ context.Context, runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return r, nil
}

func TestAddContactsToList_AllApplied(t *testing.T) {
	contacts := &fakeContacts{}
	journal := newMemJournal()
	s := NewService(contacts, nil, WithJournal(journal))

	res, err := s.AddContactsToList(context.Background(), "7", []string{"1", "2", "3"})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, res.Applied)
	assert.Equal(t, []string{"1", "2", "3"}, contacts.calls)
	assert.Empty(t, res.FailedID)

	run, err := journal.Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, []string{"1", "2", "3"}, run.Applied)
	assert.NotNil(t, run.FinishedAt)
}

func TestAddContactsToList_StopsAtFirstFailure(t *testing.T) {
	contacts := &fakeContacts{failOn: map[string]bool{"2": true}}
	journal := newMemJournal()
	s := NewService(contacts, nil, WithJournal(journal))

	res, err := s.AddContactsToList(context.Background(), "7", []string{"1", "2", "3"})

	require.ErrorIs(t, err, errBackend)
	assert.ErrorIs(t, res.Err, errBackend)
	// "1" stays applied and "3" is never attempted.
	assert.Equal(t, []string{"1"}, res.Applied)
	assert.Equal(t, "2", res.FailedID)
	assert.Equal(t, []string{"1", "2"}, contacts.calls)

	run, _ := journal.Get(context.Background(), res.RunID)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "2", run.FailedID)
	assert.Contains(t, run.Error, "backend returned 500")
}

func TestAddContactsToList_ListBusy(t *testing.T) {
	contacts := &fakeContacts{inCall: make(chan struct{}), release: make(chan struct{})}
	s := NewService(contacts, distlock.NewProvider(nil, nil, 0))

	done := make(chan error, 1)
	go func() {
		_, err := s.AddContactsToList(context.Background(), "7", []string{"1"})
		done <- err
	}()
	<-contacts.inCall

	_, err := s.AddContactsToList(context.Background(), "7", []string{"9"})
	assert.ErrorIs(t, err, ErrListBusy)

	close(contacts.release)
	require.NoError(t, <-done)

	// The lock is released once the first run ends.
	contacts.inCall = nil
	_, err = s.AddContactsToList(context.Background(), "7", []string{"9"})
	assert.NoError(t, err)
}

func TestAddContactsToList_RedisLockRefreshed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ids := make([]string, 2*refreshEvery+1)
	for i := range ids {
		ids[i] = strconv.Itoa(i + 1)
	}
	var ttlAfterRefresh time.Duration
	contacts := &fakeContacts{onCall: func(id string) {
		mr.FastForward(time.Second)
		if id == strconv.Itoa(refreshEvery+1) {
			ttlAfterRefresh = mr.TTL("lock:bulk:list:7")
		}
	}}
	s := NewService(contacts, distlock.NewProvider(client, nil, time.Minute))

	res, err := s.AddContactsToList(context.Background(), "7", ids)
	require.NoError(t, err)
	assert.Len(t, res.Applied, len(ids))
	// Refreshed after the 25th contact, then one more second elapsed.
	assert.Equal(t, 59*time.Second, ttlAfterRefresh)
	assert.False(t, mr.Exists("lock:bulk:list:7"))
}

func TestAddContactsToList_NoContacts(t *testing.T) {
	_, err := NewService(&fakeContacts{}, nil).AddContactsToList(context.Background(), "7", nil)
	assert.ErrorIs(t, err, ErrNoContacts)
}

func TestAddContactsToList_CancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	contacts := &fakeContacts{onCall: func(string) { cancel() }}

	res, err := NewService(contacts, nil).AddContactsToList(ctx, "7", []string{"1", "2"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"1"}, res.Applied)
	assert.Equal(t, "2", res.FailedID)
	assert.Equal(t, []string{"1"}, contacts.calls)
}

func TestDeleteContacts(t *testing.T) {
	contacts := &fakeContacts{}
	s := NewService(contacts, nil, WithConcurrency(2))

	res, err := s.DeleteContacts(context.Background(), []string{"1", "2", "3", "4"})
	require.NoError(t, err)

	sort.Strings(res.Applied)
	assert.Equal(t, []string{"1", "2", "3", "4"}, res.Applied)
}

func TestDeleteContacts_FirstErrorWins(t *testing.T) {
	contacts := &fakeContacts{failOn: map[string]bool{"3": true}}
	s := NewService(contacts, nil, WithConcurrency(1))

	res, err := s.DeleteContacts(context.Background(), []string{"1", "2", "3", "4", "5"})

	require.ErrorIs(t, err, errBackend)
	assert.Equal(t, "3", res.FailedID)
	assert.NotContains(t, res.Applied, "3")
	assert.Subset(t, res.Applied, []string{"1", "2"})
}

func TestNopJournal(t *testing.T) {
	var j NopJournal
	assert.NoError(t, j.Start(context.Background(), &Run{}))
	_, err := j.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
