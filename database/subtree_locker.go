package database

import (
	"context"
	"sync"
	"time"

	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/pathcodec"
)

// SubtreeLocker grants exclusive access to sets of subtree scopes. Two holders
// conflict when any of their scopes overlap by path prefix; disjoint subtrees
// proceed in parallel.
type SubtreeLocker struct {
	mu       sync.Mutex
	held     map[uint64][]string
	nextID   uint64
	released chan struct{}
}

// NewSubtreeLocker creates an empty locker.
func NewSubtreeLocker() *SubtreeLocker {
	return &SubtreeLocker{
		held:     make(map[uint64][]string),
		released: make(chan struct{}),
	}
}

// Acquire blocks until no overlapping scope is held, the timeout elapses
// (CONCURRENT_MODIFICATION) or ctx ends (DEADLINE_EXCEEDED). The returned
// release func is safe to call more than once.
func (l *SubtreeLocker) Acquire(ctx context.Context, scopes []string, timeout time.Duration) (func(), error) {
	scopes = normalizeScopes(scopes)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		l.mu.Lock()
		conflict, busy := l.conflictLocked(scopes)
		if !busy {
			id := l.nextID
			l.nextID++
			l.held[id] = scopes
			l.mu.Unlock()

			var once sync.Once
			return func() { once.Do(func() { l.release(id) }) }, nil
		}
		wait := l.released
		l.mu.Unlock()

		select {
		case <-wait:
		case <-expired:
			return nil, apperrors.NewConcurrentModificationError(conflict, nil)
		case <-ctx.Done():
			return nil, apperrors.FromContext(ctx.Err(), "acquire subtree lock")
		}
	}
}

// Held returns the number of active holders.
func (l *SubtreeLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

func (l *SubtreeLocker) conflictLocked(scopes []string) (string, bool) {
	for _, heldScopes := range l.held {
		for _, h := range heldScopes {
			for _, s := range scopes {
				if pathcodec.Overlaps(h, s) {
					return s, true
				}
			}
		}
	}
	return "", false
}

func (l *SubtreeLocker) release(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, id)
	close(l.released)
	l.released = make(chan struct{})
}
