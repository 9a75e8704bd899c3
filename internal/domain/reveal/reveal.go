// Package reveal decides when a client should react to a winner reveal.
package reveal

import (
	"sync"
	"time"
)

// DefaultFreshness is how old a reveal may be and still be celebrated.
const DefaultFreshness = 2 * time.Minute

// Option applies a configuration option to the Gate.
type Option func(*Gate)

// WithFreshness sets the freshness window.
func WithFreshness(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.freshness = d
		}
	}
}

// Gate fires once per distinct reveal timestamp, and only for recent reveals.
// A client that loads long after the reveal records it silently.
type Gate struct {
	mu        sync.Mutex
	freshness time.Duration
	last      *time.Time
	seen      bool
}

// NewGate creates a Gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{freshness: DefaultFreshness}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Observe records revealedAt and reports whether the client should celebrate.
// Skew in either direction up to the freshness window is tolerated.
func (g *Gate) Observe(revealedAt *time.Time, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seen && sameInstant(g.last, revealedAt) {
		return false
	}
	g.seen = true
	if revealedAt == nil {
		g.last = nil
		return false
	}
	t := *revealedAt
	g.last = &t

	age := now.Sub(t)
	if age < 0 {
		age = -age
	}
	return age <= g.freshness
}

// Last returns the last observed reveal timestamp.
func (g *Gate) Last() *time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return nil
	}
	t := *g.last
	return &t
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
