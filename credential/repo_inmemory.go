package credential

import (
	"context"
	"errors"
	"sync"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo
// interface, used in tests and single-instance dev deployments.
type InMemoryRepo struct {
	mu         sync.RWMutex
	records    map[string]*Record
	currentDID string
}

// NewInMemoryRepo creates a new in-memory credential repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		records: make(map[string]*Record),
	}
}

var _ Repo = (*InMemoryRepo)(nil)

func (r *InMemoryRepo) Put(_ context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}
	if rec.DID == "" {
		return errors.New("did cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *rec
	r.records[rec.DID] = &stored
	r.currentDID = rec.DID
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, did string) (*Record, error) {
	if did == "" {
		return nil, errors.New("did cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[did]
	if !exists {
		return nil, ErrNotFound
	}
	found := *rec
	return &found, nil
}

func (r *InMemoryRepo) Current(_ context.Context) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.currentDID == "" {
		return nil, ErrNotFound
	}
	rec, exists := r.records[r.currentDID]
	if !exists {
		return nil, ErrNotFound
	}
	found := *rec
	return &found, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, did string) error {
	if did == "" {
		return errors.New("did cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, did)
	if r.currentDID == did {
		r.currentDID = ""
	}
	return nil
}

func (r *InMemoryRepo) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[string]*Record)
	r.currentDID = ""
	return nil
}
