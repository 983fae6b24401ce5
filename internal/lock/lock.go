// Package lock serializes read-then-write sequences per key (per user for
// quota and streaks, per canonical pair for matches).
package lock

import (
	"context"
	"fmt"
	"sync"
)

// Unlock releases a held key. Calling it more than once is a no-op.
type Unlock func()

// Locker acquires exclusive access to a key until the returned Unlock runs.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// UserKey is the lock key for per-user counters (quota, streaks).
func UserKey(scope string, userID uint64) string {
	return fmt.Sprintf("lock:%s:user:%d", scope, userID)
}

// PairKey is the lock key for an unordered user pair.
func PairKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("lock:pair:%d:%d", a, b)
}

// PlanKey is the lock key for a plan's attendee list.
func PlanKey(planID uint64) string {
	return fmt.Sprintf("lock:plan:%d", planID)
}

// Local is an in-process keyed mutex. Entries are reference counted and
// dropped once nobody holds or waits on them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{entries: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size is the number of live entries; tests use it to check cleanup.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
