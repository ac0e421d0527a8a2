package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/newscast/pkg/store"
	"github.com/MrWong99/newscast/pkg/store/sqlite"
	"github.com/MrWong99/newscast/pkg/types"
)

func openTestStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "podcasts.db")
	s, err := sqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 6, 1, 7, 30, 0, 123, time.UTC)

	id, err := s.Save(ctx, types.Podcast{
		Title:           "晨间新闻",
		Topics:          []string{"tech", "ai"},
		DurationSeconds: 3.25,
		ScriptText:      "主播A：早上好",
		AudioPath:       "out/x.wav",
		Segments: []types.ScriptSegment{
			{Speaker: types.SpeakerA, Content: "早上好", EndTime: 3.25},
		},
		SourceArticles: []types.Article{{Title: "AI news"}},
		CreatedAt:      created,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "晨间新闻" || len(got.Topics) != 2 || got.Segments[0].EndTime != 3.25 || got.SourceArticles[0].Title != "AI news" {
		t.Errorf("Get = %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(nope) err = %v", err)
	}
}

func TestStore_List(t *testing.T) {
	t.Parallel()

	s, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, topic := range []string{"tech", "sports", "tech"} {
		if _, err := s.Save(ctx, types.Podcast{
			Title:     topic,
			Topics:    []string{topic},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	all, err := s.List(ctx, "", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("List(all) = %d, %v", len(all), err)
	}
	if !all[0].CreatedAt.After(all[1].CreatedAt) {
		t.Error("List should return newest first")
	}
	tech, err := s.List(ctx, "tech", 1)
	if err != nil || len(tech) != 1 || tech[0].Title != "tech" || !tech[0].CreatedAt.Equal(base.Add(2*time.Hour)) {
		t.Errorf("List(tech, 1) = %+v, %v", tech, err)
	}
}

func TestStore_Reopen(t *testing.T) {
	t.Parallel()

	s, path := openTestStore(t)
	ctx := context.Background()
	id, err := s.Save(ctx, types.Podcast{Title: "persisted"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, id)
	if err != nil || got.Title != "persisted" {
		t.Errorf("Get after reopen = %+v, %v", got, err)
	}
	if err := s2.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
