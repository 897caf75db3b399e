package watcher

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps baselines and the seen ledger in process. Single
// instance only; restarts re-anchor every feed on its newest entry.
type InMemoryStore struct {
	mu        sync.Mutex
	baselines map[string]time.Time
	seen      map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		baselines: make(map[string]time.Time),
		seen:      make(map[string]struct{}),
	}
}

var (
	_ StateRepo = (*InMemoryStore)(nil)
	_ SeenRepo  = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) Baseline(_ context.Context, feedURL string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.baselines[baselineKey(feedURL)]
	return at, ok, nil
}

func (s *InMemoryStore) SetBaseline(_ context.Context, feedURL string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.baselines[baselineKey(feedURL)] = publishedAt.UTC()
	return nil
}

func (s *InMemoryStore) Seen(_ context.Context, feedURL, guid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.seen[feedURL+"\x00"+guid]
	return ok, nil
}

func (s *InMemoryStore) MarkSeen(_ context.Context, feedURL, guid, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen[feedURL+"\x00"+guid] = struct{}{}
	return nil
}
