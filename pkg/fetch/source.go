package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/MrWong99/newscast/pkg/types"
)

// maxBody bounds how much of an HTTP response is decoded.
const maxBody = 32 << 20

// decodeArticles accepts either a bare JSON array of articles or an object
// with an "articles" array.
func decodeArticles(data []byte) ([]types.Article, error) {
	var list []types.Article
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Articles []types.Article `json:"articles"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode articles: %w: %w", types.ErrProtocol, err)
	}
	return wrapped.Articles, nil
}

// ── FileSource ─────────────────────────────────────────────────────────────────

// FileSource reads article records from a JSON file.
type FileSource struct {
	// Label overrides the source name; defaults to Path.
	Label string
	Path  string
}

var _ Source = FileSource{}

// Name implements Source.
func (s FileSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Path
}

// Fetch implements Source.
func (s FileSource) Fetch(ctx context.Context) ([]types.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return decodeArticles(data)
}

// ── HTTPSource ─────────────────────────────────────────────────────────────────

// HTTPSource downloads article records from an aggregator endpoint.
type HTTPSource struct {
	// Label overrides the source name; defaults to URL.
	Label string
	URL   string

	// Header is added to the request, e.g. for an API token.
	Header http.Header

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

var _ Source = (*HTTPSource)(nil)

// Name implements Source.
func (s *HTTPSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.URL
}

// Fetch implements Source. Non-2xx responses are a types.ErrRemote.
func (s *HTTPSource) Fetch(ctx context.Context) ([]types.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range s.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w: %w", s.URL, types.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: %w", s.URL, &types.RemoteError{Code: uint32(resp.StatusCode), Message: resp.Status})
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", s.URL, types.ErrConnection, err)
	}
	return decodeArticles(data)
}
