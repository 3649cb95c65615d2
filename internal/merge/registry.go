package merge

import (
	"errors"
	"slices"
	"sync"
)

// ErrRegistryFull is returned when a first activation cannot be recorded
// because the registry reached its capacity. The event is suppressed.
var ErrRegistryFull = errors.New("merge: registry is full")

// Registry counts outstanding activations per logical key. An entry exists
// only while its count is above zero.
//
// Consume is safe for concurrent use; the whole read-modify-write runs under
// one lock.
type Registry struct {
	mu       sync.Mutex
	entries  map[uint32]uint32
	capacity int
}

// Option configures a Registry.
type Option func(*Registry)

// WithCapacity bounds the number of simultaneously active keys. Zero or
// negative means unbounded.
func WithCapacity(n int) Option {
	return func(r *Registry) { r.capacity = n }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{entries: make(map[uint32]uint32)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Consume records a press or release of key and reports whether the event
// must be suppressed. Only the first press and the release that brings the
// count back to zero are forwarded. A release without an outstanding press is
// suppressed and leaves no entry behind.
func (r *Registry) Consume(key uint32, pressed bool) (suppress bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, found := r.entries[key]

	if pressed {
		if found {
			r.entries[key] = count + 1
			return true, nil
		}
		if r.capacity > 0 && len(r.entries) >= r.capacity {
			return true, ErrRegistryFull
		}
		r.entries[key] = 1
		return false, nil
	}

	if !found {
		return true, nil
	}
	if count > 1 {
		r.entries[key] = count - 1
		return true, nil
	}
	delete(r.entries, key)
	return false, nil
}

// Count returns the number of outstanding activations for key.
func (r *Registry) Count(key uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[key]
}

// Len returns the number of active keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Keys returns a sorted snapshot of the active keys.
func (r *Registry) Keys() []uint32 {
	r.mu.Lock()
	keys := make([]uint32, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	slices.Sort(keys)
	return keys
}

// Reset drops every entry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
}
