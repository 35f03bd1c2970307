// Package distlock provides single-holder locks for work that must not run
// twice at once, such as dispatching one campaign.
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

// ErrNotHeld is returned by Release when the lock is not held by the caller.
var ErrNotHeld = errors.New("distlock: lock not held")

// Lock is a non-blocking mutual exclusion primitive. A Lock value belongs to
// one holder; create a new one per attempt.
type Lock interface {
	// Acquire tries to take the lock and reports whether it succeeded.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this holder still owns it.
	Release(ctx context.Context) error
}

// Factory builds locks for keys on the best backend available.
type Factory struct {
	redis *redis.Client
	db    *sql.DB
	local *LocalLocks
	ttl   time.Duration
}

// NewFactory prefers Redis, then PostgreSQL advisory locks, then an
// in-process table. ttl only applies to Redis.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *Factory {
	f := &Factory{redis: redisClient, db: db, ttl: ttl}
	if redisClient == nil && db == nil {
		f.local = NewLocalLocks()
	}
	return f
}

// New returns a lock for key.
func (f *Factory) New(key string) Lock {
	switch {
	case f.redis != nil:
		return NewRedisLock(f.redis, key, f.ttl)
	case f.db != nil:
		return NewPGAdvisoryLock(f.db, key)
	default:
		return f.local.New(key)
	}
}

// Backend names the lock backend, for logging.
func (f *Factory) Backend() string {
	switch {
	case f.redis != nil:
		return "redis"
	case f.db != nil:
		return "postgres"
	default:
		return "local"
	}
}

// PGAdvisoryLock holds a session-level advisory lock. The session is pinned
// to one pooled connection between Acquire and Release, so the lock dies
// with the connection if the process does.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives the advisory lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	return &PGAdvisoryLock{db: db, lockID: advisoryID(key)}
}

func advisoryID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("distlock: pin connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("distlock: try advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// LocalLocks is an in-process lock table for single-instance deployments
// and tests.
type LocalLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocks() *LocalLocks {
	return &LocalLocks{held: make(map[string]bool)}
}

// New returns a lock for key in this table.
func (t *LocalLocks) New(key string) Lock {
	return &localLock{table: t, key: key}
}

type localLock struct {
	table *LocalLocks
	key   string
	owned bool
}

func (l *localLock) Acquire(context.Context) (bool, error) {
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
		return ErrNotHeld
	}
	l.table.mu.Lock()
	delete(l.table.held, l.key)
	l.table.mu.Unlock()
	l.owned = false
	return nil
}
