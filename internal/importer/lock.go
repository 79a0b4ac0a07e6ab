package importer

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ownerLocks hands out one exclusive lock per owner. Waiting for a lock
// can be cancelled through the context.
type ownerLocks struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{sems: make(map[string]*semaphore.Weighted)}
}

func (l *ownerLocks) sem(owner string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[owner]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.sems[owner] = s
	}
	return s
}

// lock blocks until owner's lock is free or ctx is done. The returned
// function releases the lock.
func (l *ownerLocks) lock(ctx context.Context, owner string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := l.sem(owner)
	if err := s.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.Release(1) }, nil
}
