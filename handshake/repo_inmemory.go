package handshake

import (
	"context"
	"errors"
	"sync"
	"time"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo
// interface, used in tests and single-instance dev deployments.
type InMemoryRepo struct {
	mu      sync.RWMutex
	records map[string]*Record
	ttl     time.Duration
	nowTime func() time.Time
}

// InMemoryOption modifies an InMemoryRepo instance.
type InMemoryOption func(*InMemoryRepo)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) InMemoryOption {
	return func(r *InMemoryRepo) {
		r.nowTime = nowFunc
	}
}

// NewInMemoryRepo creates a new in-memory handshake repository.
func NewInMemoryRepo(ttl time.Duration, options ...InMemoryOption) *InMemoryRepo {
	r := &InMemoryRepo{
		records: make(map[string]*Record),
		ttl:     ttl,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

var _ Repo = (*InMemoryRepo)(nil)

// Upsert stores or updates a handshake record.
func (r *InMemoryRepo) Upsert(_ context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}
	if rec.State == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Copy to prevent external modifications
	stored := *rec
	r.records[rec.State] = &stored
	return nil
}

// Get retrieves a live handshake record by state value.
func (r *InMemoryRepo) Get(_ context.Context, state string) (*Record, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[state]
	if !exists {
		return nil, ErrNotFound
	}
	if r.expired(rec) {
		delete(r.records, state)
		return nil, ErrNotFound
	}

	found := *rec
	return &found, nil
}

// Delete removes a handshake record. Deleting an absent state is not an
// error.
func (r *InMemoryRepo) Delete(_ context.Context, state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, state)
	return nil
}

func (r *InMemoryRepo) expired(rec *Record) bool {
	if r.ttl <= 0 {
		return false
	}
	return r.nowTime().After(rec.CreatedAt.Add(r.ttl))
}
