// Package ringbuffer provides a bounded, concurrency-safe FIFO store that
// evicts its oldest element to make room for a new one.
//
// Readers (Snapshot, Filter, Len) share access; writers (Push, Clear,
// DequeueBatch) are exclusive. The lock never escapes the type.
package ringbuffer

import "sync"

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 10000

// RingBuffer is a fixed-capacity circular buffer. When full, Push drops the
// oldest element before appending, in a single exclusive step.
type RingBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int // position of the oldest element
	count    int
	capacity int

	// Stats
	dropped uint64
}

// New creates a ring buffer holding at most capacity elements.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends item as the newest element, evicting the oldest if the buffer
// is at capacity. It never fails.
func (b *RingBuffer[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == b.capacity {
		var zero T
		b.items[b.head] = zero
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.dropped++
	}

	b.items[(b.head+b.count)%b.capacity] = item
	b.count++
}

// Snapshot returns a copy of the held elements, oldest first.
func (b *RingBuffer[T]) Snapshot() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.copyLocked()
}

// Filter returns, oldest first, the held elements for which keep returns true.
// The predicate runs against a snapshot, outside the lock.
func (b *RingBuffer[T]) Filter(keep func(T) bool) []T {
	snapshot := b.Snapshot()
	result := make([]T, 0, len(snapshot))
	for _, item := range snapshot {
		if keep(item) {
			result = append(result, item)
		}
	}
	return result
}

// DequeueBatch removes and returns up to n of the oldest elements.
// Returns nil if the buffer is empty or n is not positive.
func (b *RingBuffer[T]) DequeueBatch(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 || n <= 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	var zero T
	result := make([]T, n)
	for i := range n {
		result[i] = b.items[b.head]
		b.items[b.head] = zero
		b.head = (b.head + 1) % b.capacity
	}
	b.count -= n
	return result
}

// Clear removes every element. Capacity and the dropped counter are kept.
func (b *RingBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.items)
	b.head = 0
	b.count = 0
}

// Len returns the number of elements currently held.
func (b *RingBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the fixed capacity.
func (b *RingBuffer[T]) Cap() int {
	return b.capacity
}

// Dropped returns the total number of elements evicted by overflow.
func (b *RingBuffer[T]) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

func (b *RingBuffer[T]) copyLocked() []T {
	result := make([]T, b.count)
	for i := range b.count {
		result[i] = b.items[(b.head+i)%b.capacity]
	}
	return result
}
