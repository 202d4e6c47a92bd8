// Package distlock provides named locks that serialize work on a resource
// across gateway replicas. Bulk list operations take one lock per list.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotOwned is returned when releasing or extending a lock that expired
// or was taken over by another holder.
var ErrNotOwned = errors.New("distlock: lock not owned")

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Refresher is implemented by locks that expire on their own and can be
// kept alive by their holder.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Provider hands out locks for keys using the best configured backend:
// Redis when a client is set, PostgreSQL advisory locks when a database is
// set, an in-process lock table otherwise.
type Provider struct {
	redis *redis.Client
	db    *sql.DB
	ttl   time.Duration
	local *localLocks
}

// NewProvider creates a Provider. Either backend may be nil.
func NewProvider(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Provider{redis: redisClient, db: db, ttl: ttl, local: &localLocks{held: map[string]bool{}}}
}

// Lock returns a new, unacquired lock for key.
func (p *Provider) Lock(key string) DistLock {
	switch {
	case p.redis != nil:
		return NewRedisLock(p.redis, key, p.ttl)
	case p.db != nil:
		return NewPGAdvisoryLock(p.db, key)
	default:
		return &localLock{table: p.local, key: key}
	}
}

// Backend names the backend used for new locks.
func (p *Provider) Backend() string {
	switch {
	case p.redis != nil:
		return "redis"
	case p.db != nil:
		return "postgres"
	default:
		return "local"
	}
}

// PGAdvisoryLock implements DistLock using PostgreSQL advisory locks.
// Advisory locks belong to a database session, so the lock pins one pooled
// connection from Acquire until Release. A dropped connection releases it.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	return &PGAdvisoryLock{db: db, lockID: advisoryID(key)}
}

func advisoryID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// Acquire tries pg_try_advisory_lock on a dedicated connection.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, errors.New("distlock: advisory lock already held by this instance")
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("distlock: getting connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("distlock: acquiring advisory lock %d: %w", l.lockID, err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the connection that took the lock and returns it to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotOwned
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()

	var released bool
	if err := l.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released); err != nil {
		return fmt.Errorf("distlock: releasing advisory lock %d: %w", l.lockID, err)
	}
	if !released {
		return ErrNotOwned
	}
	return nil
}

// localLocks is the in-process lock table used when no shared backend is
// configured. It only serializes work inside one process.
type localLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

type localLock struct {
	table *localLocks
	key   string
	owned bool
}

func (l *localLock) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.table.held[l.key] {
		return false, nil
	}
	l.table.held[l.key] = true
	l.owned = true
	return true, nil
}

func (l *localLock) Release(context.Context) error {
	if !l.owned {
		return ErrNotOwned
	}
	l.table.mu.Lock()
	delete(l.table.held, l.key)
	l.table.mu.Unlock()
	l.owned = false
	return nil
}
