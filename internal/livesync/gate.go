package livesync

import (
	"reflect"
	"sync"
)

// Gate holds the last applied value and admits only values that differ from
// it structurally. Re-ordered or repeated deliveries converge instead of
// accumulating.
type Gate[T any] struct {
	mu   sync.RWMutex
	last T
	has  bool
}

// Apply stores v and reports true when it differs from the last applied value.
func (g *Gate[T]) Apply(v T) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.has && reflect.DeepEqual(g.last, v) {
		return false
	}
	g.last = v
	g.has = true
	return true
}

// Value returns the last applied value.
func (g *Gate[T]) Value() (T, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last, g.has
}
