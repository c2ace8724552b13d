package spotify

import (
	"context"
	"time"
)

// Gate admits requests against the shared window.
type Gate interface {
	TryAdmit(ctx context.Context, query string, offset, limit int) (bool, error)
	NextSlotETA(ctx context.Context) (time.Duration, error)
	UpdateFound(ctx context.Context, query string, offset, found int) error
}

// GatedEndpoint wraps an Endpoint so every call waits for a slot in the
// shared window before going upstream. Used by the API passthrough; crawl
// workers gate themselves to keep admission metrics at the worker.
type GatedEndpoint struct {
	inner Endpoint
	gate  Gate

	// epsilon pads the sleep after a denied admission.
	epsilon time.Duration
}

// NewGatedEndpoint wraps inner with gate.
func NewGatedEndpoint(inner Endpoint, gate Gate) *GatedEndpoint {
	return &GatedEndpoint{inner: inner, gate: gate, epsilon: 10 * time.Millisecond}
}

// SearchArtists implements Endpoint.
func (g *GatedEndpoint) SearchArtists(ctx context.Context, query string, offset int) ([]Artist, error) {
	for {
		ok, err := g.gate.TryAdmit(ctx, query, offset, PageLimit)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		eta, err := g.gate.NextSlotETA(ctx)
		if err != nil {
			return nil, err
		}
		t := time.NewTimer(eta + g.epsilon)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	artists, err := g.inner.SearchArtists(ctx, query, offset)
	if err != nil {
		return nil, err
	}
	_ = g.gate.UpdateFound(ctx, query, offset, len(artists))
	return artists, nil
}
