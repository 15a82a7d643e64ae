// Package handle maps opaque integer handles to Go values so that callers
// across the C boundary never hold Go pointers.
package handle

import (
	"errors"
	"sync"
)

// ErrNotFound is returned for the null handle and for handles that were
// never issued or were already removed.
var ErrNotFound = errors.New("handle: not found")

// Handle identifies a value in a Table. Zero is the null handle.
type Handle uint64

// Table is a concurrency-safe handle table. Handles are never reused
// within one Table.
type Table[T any] struct {
	mu     sync.RWMutex
	next   Handle
	values map[Handle]T
}

// NewTable returns an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{values: make(map[Handle]T)}
}

// Insert stores v and returns its fresh non-zero handle.
func (t *Table[T]) Insert(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.values[t.next] = v
	return t.next
}

// Get returns the value behind h.
func (t *Table[T]) Get(h Handle) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[h]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return v, nil
}

// Remove deletes h and returns its value. A second Remove of the same
// handle returns ErrNotFound.
func (t *Table[T]) Remove(h Handle) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.values[h]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	delete(t.values, h)
	return v, nil
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

// Drain removes every handle and returns the values in handle order.
func (t *Table[T]) Drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]T, 0, len(t.values))
	for h := Handle(1); h <= t.next; h++ {
		if v, ok := t.values[h]; ok {
			out = append(out, v)
		}
	}
	clear(t.values)
	return out
}
