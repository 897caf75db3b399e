package locker

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// InMemory is a per-key semaphore locker for single-instance deployments.
type InMemory struct {
	wait time.Duration
	mu   sync.Mutex
	sems map[string]chan struct{}
}

// NewInMemory creates an in-memory locker with the given wait bound.
func NewInMemory(wait time.Duration) *InMemory {
	return &InMemory{
		wait: wait,
		sems: make(map[string]chan struct{}),
	}
}

var _ Locker = (*InMemory)(nil)

func (l *InMemory) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	if key == "" {
		return nil, errors.New("[InMemory.Acquire] key cannot be empty")
	}

	sem := l.sem(key)
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-sem })
		}, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "[InMemory.Acquire] context done")
	case <-timer.C:
		return nil, ErrLockBusy
	}
}

func (l *InMemory) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, exists := l.sems[key]
	if !exists {
		sem = make(chan struct{}, 1)
		l.sems[key] = sem
	}
	return sem
}
