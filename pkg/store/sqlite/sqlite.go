// Package sqlite provides an embedded SQLite store.Store using the pure-Go
// modernc.org/sqlite driver. Topics, segments and articles are stored as JSON
// text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/newscast/pkg/store"
	"github.com/MrWong99/newscast/pkg/types"
)

var _ store.Store = (*Store)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS podcasts (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL,
    topics           TEXT NOT NULL DEFAULT '[]',
    duration_seconds REAL NOT NULL DEFAULT 0,
    script_text      TEXT NOT NULL DEFAULT '',
    audio_path       TEXT NOT NULL DEFAULT '',
    segments         TEXT NOT NULL DEFAULT '[]',
    source_articles  TEXT NOT NULL DEFAULT '[]',
    created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_podcasts_created_at ON podcasts(created_at);
`

// Store is a SQLite podcast store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create data dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save implements store.Store.
func (s *Store) Save(ctx context.Context, p types.Podcast) (string, error) {
	p = store.Prepare(p)
	topics, err := marshalList(p.Topics)
	if err != nil {
		return "", err
	}
	segments, err := marshalList(p.Segments)
	if err != nil {
		return "", err
	}
	articles, err := marshalList(p.SourceArticles)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO podcasts (id, title, topics, duration_seconds, script_text, audio_path, segments, source_articles, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, topics, p.DurationSeconds, p.ScriptText, p.AudioPath, segments, articles, p.CreatedAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("sqlite store: save %s: %w", p.ID, err)
	}
	return p.ID, nil
}

const selectColumns = `id, title, topics, duration_seconds, script_text, audio_path, segments, source_articles, created_at`

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (types.Podcast, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM podcasts WHERE id = ?`, id)
	p, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Podcast{}, store.ErrNotFound
	}
	if err != nil {
		return types.Podcast{}, fmt.Errorf("sqlite store: get %s: %w", id, err)
	}
	return p, nil
}

// List implements store.Store. The topic filter is applied after decoding the
// JSON topic list.
func (s *Store) List(ctx context.Context, topic string, limit int) ([]types.Podcast, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM podcasts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list: %w", err)
	}
	defer rows.Close()

	var out []types.Podcast
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: list scan: %w", err)
		}
		if topic != "" && !slices.Contains(p.Topics, topic) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: list: %w", err)
	}
	return out, nil
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (types.Podcast, error) {
	var (
		p                          types.Podcast
		topics, segments, articles string
		created                    int64
	)
	if err := row.Scan(&p.ID, &p.Title, &topics, &p.DurationSeconds, &p.ScriptText,
		&p.AudioPath, &segments, &articles, &created); err != nil {
		return types.Podcast{}, err
	}
	for _, f := range []struct {
		raw string
		dst any
	}{{topics, &p.Topics}, {segments, &p.Segments}, {articles, &p.SourceArticles}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return types.Podcast{}, fmt.Errorf("decode column: %w", err)
		}
	}
	p.CreatedAt = time.Unix(0, created).UTC()
	return p, nil
}

func marshalList[T any](s []T) (string, error) {
	if s == nil {
		s = []T{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("sqlite store: marshal: %w", err)
	}
	return string(b), nil
}
