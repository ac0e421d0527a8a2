// Package mock provides a test double for the store.Store interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/newscast/pkg/store"
	"github.com/MrWong99/newscast/pkg/types"
)

// Store is a mock store.Store backed by a store.MemStore. Setting an *Err
// field makes the corresponding method fail without touching the data.
type Store struct {
	mu  sync.Mutex
	mem *store.MemStore

	SaveErr error
	GetErr  error
	ListErr error
	PingErr error

	Saved      []types.Podcast
	CloseCalls int
}

var _ store.Store = (*Store)(nil)

func (s *Store) backend() *store.MemStore {
	if s.mem == nil {
		s.mem = store.NewMemStore()
	}
	return s.mem
}

// Save records p and stores it unless SaveErr is set.
func (s *Store) Save(ctx context.Context, p types.Podcast) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return "", s.SaveErr
	}
	p = store.Prepare(p)
	s.Saved = append(s.Saved, p)
	return s.backend().Save(ctx, p)
}

// Get returns a saved podcast.
func (s *Store) Get(ctx context.Context, id string) (types.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return types.Podcast{}, s.GetErr
	}
	return s.backend().Get(ctx, id)
}

// List lists saved podcasts.
func (s *Store) List(ctx context.Context, topic string, limit int) ([]types.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return s.backend().List(ctx, topic, limit)
}

// Ping returns PingErr.
func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PingErr
}

// Close counts the call.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}

// SavedCount returns the number of successful Save calls.
func (s *Store) SavedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Saved)
}
