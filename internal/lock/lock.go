// Package lock provides the run lock that keeps two pipeline runs from
// writing the same outputs at the same time.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrLockNotAcquired is returned when a lock is held by someone else.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that expired or was
	// taken over.
	ErrLockNotHeld = errors.New("lock not held")
)

// Locker acquires named locks with a time to live.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// LocalLocker is an in-process Locker for deployments with a single worker
// process. Expired locks can be taken over.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), clock: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, ErrLockNotAcquired
	}
	expires := now.Add(ttl)
	l.held[key] = expires
	return &localLock{locker: l, key: key, expires: expires}, nil
}

type localLock struct {
	locker  *LocalLocker
	key     string
	expires time.Time
}

func (lk *localLock) Release(_ context.Context) error {
	lk.locker.mu.Lock()
	defer lk.locker.mu.Unlock()

	if current, ok := lk.locker.held[lk.key]; !ok || !current.Equal(lk.expires) {
		return ErrLockNotHeld
	}
	delete(lk.locker.held, lk.key)
	return nil
}
