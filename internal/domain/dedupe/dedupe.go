// Package dedupe tracks change ids already applied by a read model, so a row
// delivered by both the subscription and the poll is applied once.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id, allowing it to be applied again (e.g. after a
	// failed candidate lookup on a lineup insert).
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps the most recent maxSize ids in a ring. The oldest id
// is forgotten first. maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64 // id -> sequence number of its ring slot
	ring    []string
	seq     uint64
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 10_000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	if d.maxSize > 0 {
		d.ring = make([]string, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 {
		slot := d.seq % uint64(d.maxSize)
		if old := d.ring[slot]; old != "" {
			// The slot may be stale if old was unrecorded and seen again later.
			if s, ok := d.seen[old]; ok && s%uint64(d.maxSize) == slot && s < d.seq {
				delete(d.seen, old)
			}
		}
		d.ring[slot] = id
	}
	d.seen[id] = d.seq
	d.seq++
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

// Size returns the number of remembered ids.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
