// Package mock provides a test double for the podcast.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/newscast/pkg/audio"
	"github.com/MrWong99/newscast/pkg/provider/podcast"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	Ctx context.Context
	Req podcast.Request
}

// Provider is a mock implementation of podcast.Provider.
type Provider struct {
	mu sync.Mutex

	// Statuses are reported, in order, before Generate returns.
	Statuses []podcast.Status

	// Clip and Err are returned by Generate.
	Clip audio.Clip
	Err  error

	// Block, if non-nil, makes Generate wait until it is closed or ctx is done.
	// A done ctx yields ctx.Err().
	Block chan struct{}

	GenerateCalls []GenerateCall
}

// Generate records the call, reports Statuses, and returns Clip, Err.
func (p *Provider) Generate(ctx context.Context, req podcast.Request, onStatus func(podcast.Status)) (audio.Clip, error) {
	p.mu.Lock()
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Ctx: ctx, Req: req})
	statuses, clip, err, block := p.Statuses, p.Clip, p.Err, p.Block
	p.mu.Unlock()

	for _, s := range statuses {
		if onStatus != nil {
			onStatus(s)
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return audio.Clip{}, ctx.Err()
		}
	}
	return clip, err
}

// CallCount returns the number of Generate calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.GenerateCalls)
}

var _ podcast.Provider = (*Provider)(nil)
