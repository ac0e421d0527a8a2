// Package postgres provides a PostgreSQL-backed store.Store.
//
// Topics are stored as a TEXT[] with a GIN index; segments and source
// articles as JSONB. [NewStore] runs [Migrate] on every start.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
//	id, _ := s.Save(ctx, podcast)
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/newscast/pkg/store"
	"github.com/MrWong99/newscast/pkg/types"
)

var _ store.Store = (*Store)(nil)

const ddlPodcasts = `
CREATE TABLE IF NOT EXISTS podcasts (
    id               TEXT         PRIMARY KEY,
    title            TEXT         NOT NULL,
    topics           TEXT[]       NOT NULL DEFAULT '{}',
    duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    script_text      TEXT         NOT NULL DEFAULT '',
    audio_path       TEXT         NOT NULL DEFAULT '',
    segments         JSONB        NOT NULL DEFAULT '[]',
    source_articles  JSONB        NOT NULL DEFAULT '[]',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_podcasts_created_at ON podcasts (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_podcasts_topics ON podcasts USING GIN (topics);
`

// Migrate creates the podcasts table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlPodcasts); err != nil {
		return fmt.Errorf("postgres store: migrate podcasts: %w", err)
	}
	return nil
}

// Store is a PostgreSQL podcast store. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Save implements store.Store.
func (s *Store) Save(ctx context.Context, p types.Podcast) (string, error) {
	p = store.Prepare(p)
	segments, err := json.Marshal(nonNil(p.Segments))
	if err != nil {
		return "", fmt.Errorf("postgres store: marshal segments: %w", err)
	}
	articles, err := json.Marshal(nonNil(p.SourceArticles))
	if err != nil {
		return "", fmt.Errorf("postgres store: marshal articles: %w", err)
	}
	topics := p.Topics
	if topics == nil {
		topics = []string{}
	}

	const q = `
		INSERT INTO podcasts
		    (id, title, topics, duration_seconds, script_text, audio_path, segments, source_articles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = s.pool.Exec(ctx, q,
		p.ID, p.Title, topics, p.DurationSeconds, p.ScriptText, p.AudioPath,
		segments, articles, p.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("postgres store: save %s: %w", p.ID, err)
	}
	return p.ID, nil
}

const selectColumns = `id, title, topics, duration_seconds, script_text, audio_path, segments, source_articles, created_at`

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (types.Podcast, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM podcasts WHERE id = $1`, id)
	p, err := scanPodcast(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Podcast{}, store.ErrNotFound
	}
	if err != nil {
		return types.Podcast{}, fmt.Errorf("postgres store: get %s: %w", id, err)
	}
	return p, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, topic string, limit int) ([]types.Podcast, error) {
	var lim *int64
	if limit > 0 {
		l := int64(limit)
		lim = &l
	}
	q := `SELECT ` + selectColumns + `
		FROM   podcasts
		WHERE  $1::text = '' OR $1::text = ANY(topics)
		ORDER  BY created_at DESC
		LIMIT  $2`
	rows, err := s.pool.Query(ctx, q, topic, lim)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	defer rows.Close()

	var out []types.Podcast
	for rows.Next() {
		p, err := scanPodcast(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres store: list scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	return out, nil
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanPodcast(row pgx.Row) (types.Podcast, error) {
	var (
		p                  types.Podcast
		segments, articles []byte
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Topics, &p.DurationSeconds, &p.ScriptText,
		&p.AudioPath, &segments, &articles, &p.CreatedAt); err != nil {
		return types.Podcast{}, err
	}
	if err := json.Unmarshal(segments, &p.Segments); err != nil {
		return types.Podcast{}, fmt.Errorf("unmarshal segments: %w", err)
	}
	if err := json.Unmarshal(articles, &p.SourceArticles); err != nil {
		return types.Podcast{}, fmt.Errorf("unmarshal articles: %w", err)
	}
	return p, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
