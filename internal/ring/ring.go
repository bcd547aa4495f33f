// Package ring implements a bounded append log with a monotonic sequence
// counter. When the log is full the oldest entry is evicted; the counter
// never goes backward.
package ring

import "sync"

// Log is a fixed-capacity append-only history of T.
type Log[T any] struct {
	mu      sync.RWMutex
	entries []T
	cap     int
	seq     uint64
}

// New creates a Log holding at most capacity entries.
// A capacity below 1 is treated as 1.
func New[T any](capacity int) *Log[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Log[T]{cap: capacity}
}

// Append adds an entry, evicting the oldest if the log is full,
// and returns the entry's monotonic sequence number.
func (l *Log[T]) Append(entry T) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.cap {
		// Evict oldest rather than grow.
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = entry
	} else {
		l.entries = append(l.entries, entry)
	}

	l.seq++
	return l.seq
}

// Next returns the sequence number the next Append will receive.
func (l *Log[T]) Next() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq + 1
}

// Snapshot returns a copy of the retained entries, oldest first.
func (l *Log[T]) Snapshot() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *Log[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Reset discards all entries. The sequence counter is preserved.
func (l *Log[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
