package storage

// RingBuffer holds the most recent items up to a fixed capacity. Every item
// gets an absolute position (0 for the first item ever added) that never
// changes, so callers can ask for "everything since position p" after the
// oldest items have been overwritten.
//
// RingBuffer is not safe for concurrent use; RunStore guards it with its
// own lock.
type RingBuffer[T any] struct {
	items []T
	next  int // absolute position of the next item
	size  int
}

// NewRingBuffer creates a ring buffer holding at most capacity items.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be greater than zero")
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Add appends item at position Next(). When the buffer is full the oldest
// item is overwritten and returned with evicted set.
func (rb *RingBuffer[T]) Add(item T) (old T, evicted bool) {
	slot := rb.next % len(rb.items)
	if rb.size == len(rb.items) {
		old, evicted = rb.items[slot], true
	} else {
		rb.size++
	}
	rb.items[slot] = item
	rb.next++
	return old, evicted
}

// oldest is the absolute position of the oldest held item.
func (rb *RingBuffer[T]) oldest() int {
	return rb.next - rb.size
}

// All returns held items oldest first, as a copy.
func (rb *RingBuffer[T]) All() []T {
	return rb.Since(rb.oldest())
}

// Newest returns the most recently added item.
func (rb *RingBuffer[T]) Newest() (T, bool) {
	if rb.size == 0 {
		var zero T
		return zero, false
	}
	return rb.items[(rb.next-1)%len(rb.items)], true
}

// Since returns the held items at positions >= pos, oldest first. Positions
// already overwritten are skipped.
func (rb *RingBuffer[T]) Since(pos int) []T {
	pos = max(pos, rb.oldest())
	if pos >= rb.next {
		return nil
	}
	out := make([]T, 0, rb.next-pos)
	for p := pos; p < rb.next; p++ {
		out = append(out, rb.items[p%len(rb.items)])
	}
	return out
}

// Len returns the number of held items.
func (rb *RingBuffer[T]) Len() int { return rb.size }

// Cap returns the maximum number of held items.
func (rb *RingBuffer[T]) Cap() int { return len(rb.items) }

// Next returns the position the next item will take, which is also the
// number of items ever added.
func (rb *RingBuffer[T]) Next() int { return rb.next }

// Reset drops all items. Positions keep counting, so a position taken before
// the reset still orders before anything added after it.
func (rb *RingBuffer[T]) Reset() {
	clear(rb.items)
	rb.size = 0
}
