// Package store defines persistence for finished podcasts.
//
// Audio files live on disk; a Store records their path together with the
// script, timestamped segments, and source articles. Implementations:
//
//   - [MemStore]: in-process, the default when no database is configured
//   - store/postgres: PostgreSQL via pgx, JSONB columns
//   - store/sqlite: embedded SQLite via modernc.org/sqlite
package store

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/newscast/pkg/types"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("store: podcast not found")

// Store persists podcasts. All methods are safe for concurrent use.
type Store interface {
	// Save inserts p and returns its id. An empty p.ID is replaced with a new
	// UUID and a zero p.CreatedAt with the current time.
	Save(ctx context.Context, p types.Podcast) (string, error)

	// Get returns the podcast with id, or ErrNotFound.
	Get(ctx context.Context, id string) (types.Podcast, error)

	// List returns podcasts newest first. A non-empty topic keeps only
	// podcasts covering it; limit <= 0 means no limit.
	List(ctx context.Context, topic string, limit int) ([]types.Podcast, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Prepare fills the id and creation time of p when unset. Backends call it at
// the start of Save.
func Prepare(p types.Podcast) types.Podcast {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return p
}

// ── MemStore ───────────────────────────────────────────────────────────────────

// MemStore is an in-memory Store.
type MemStore struct {
	mu       sync.RWMutex
	podcasts map[string]types.Podcast
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{podcasts: make(map[string]types.Podcast)}
}

// Save implements Store.
func (m *MemStore) Save(_ context.Context, p types.Podcast) (string, error) {
	p = Prepare(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.podcasts[p.ID] = p
	return p.ID, nil
}

// Get implements Store.
func (m *MemStore) Get(_ context.Context, id string) (types.Podcast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.podcasts[id]
	if !ok {
		return types.Podcast{}, ErrNotFound
	}
	return p, nil
}

// List implements Store.
func (m *MemStore) List(_ context.Context, topic string, limit int) ([]types.Podcast, error) {
	m.mu.RLock()
	out := make([]types.Podcast, 0, len(m.podcasts))
	for _, p := range m.podcasts {
		if topic == "" || slices.Contains(p.Topics, topic) {
			out = append(out, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping implements Store.
func (m *MemStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *MemStore) Close() error { return nil }
