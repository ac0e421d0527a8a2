// Package fetch collects news articles for a topic from a set of sources.
//
// Sources are queried concurrently. A failing source is logged and skipped;
// only when every source fails does the fetch as a whole fail. Feed formats
// are out of scope: sources deliver article records as JSON.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/newscast/pkg/types"
)

// Source delivers the current articles of one origin.
type Source interface {
	// Name identifies the source in logs and in Article.Source.
	Name() string

	// Fetch returns the source's articles. It must honour ctx.
	Fetch(ctx context.Context) ([]types.Article, error)
}

// Option is a functional option for configuring a Group.
type Option func(*Group)

// WithConcurrency bounds the number of sources queried at once. Values below
// one mean no bound.
func WithConcurrency(n int) Option {
	return func(g *Group) { g.limit = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Group) { g.log = l }
}

// Group fans a fetch out over several sources.
type Group struct {
	limit int
	log   *slog.Logger
}

// NewGroup returns a Group. The default concurrency is 4.
func NewGroup(opts ...Option) *Group {
	g := &Group{limit: 4}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	return g
}

// Fetch queries sources and returns their articles concatenated in source
// order. onProgress, when non-nil, is called after each source settles with
// the number of settled sources and the total; calls are serialised.
//
// Fetch fails only if ctx is cancelled or every source fails. Zero sources
// yield an empty result and no error.
func (g *Group) Fetch(ctx context.Context, sources []Source, onProgress func(completed, total int)) ([]types.Article, error) {
	total := len(sources)
	if total == 0 {
		return nil, nil
	}

	var (
		mu        sync.Mutex
		completed int
		errs      = make([]error, total)
		results   = make([][]types.Article, total)
	)

	eg, egCtx := errgroup.WithContext(ctx)
	if g.limit > 0 {
		eg.SetLimit(g.limit)
	}
	for i, src := range sources {
		eg.Go(func() error {
			articles, err := src.Fetch(egCtx)
			if err != nil {
				g.log.Warn("fetch: source failed", "source", src.Name(), "err", err)
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
			} else {
				articles = slices.Clone(articles)
				for j := range articles {
					if articles[j].Source == "" {
						articles[j].Source = src.Name()
					}
				}
				results[i] = articles
				g.log.Debug("fetch: source done", "source", src.Name(), "articles", len(articles))
			}

			mu.Lock()
			completed++
			if onProgress != nil {
				onProgress(completed, total)
			}
			mu.Unlock()
			// Per-source failures never abort siblings.
			return nil
		})
	}
	_ = eg.Wait()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("fetch: %w: %w", types.ErrCancelled, context.Cause(ctx))
	}

	var out []types.Article
	failed := 0
	for i := range sources {
		if errs[i] != nil {
			failed++
			continue
		}
		out = append(out, results[i]...)
	}
	if failed == total {
		return nil, fmt.Errorf("fetch: all %d sources failed: %w", total, errors.Join(errs...))
	}
	return out, nil
}
