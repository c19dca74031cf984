package engine

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/kllcore/internal/config"
)

// Ring is a bounded FIFO with a fixed, preallocated backing array.
//
// It sits on the boundary between execution contexts: the scan front end
// pushes events while the tick drains them, and the tick pushes actions
// while the host interface drains them. The mutex guards O(1) work only and
// is never held across anything else.
//
// When full, Push follows the configured overflow policy. Every element lost
// to overflow is counted; none is ever silently overwritten.
//
// The signal channel lets a Run loop wait for data without polling.
type Ring[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int
	n      int
	policy config.OverflowPolicy

	dropped atomic.Int64
	signal  chan struct{} // buffered, size 1
}

// NewRing creates a ring with the given capacity and overflow policy.
// A capacity below 1 is raised to 1.
func NewRing[T any](capacity int, policy config.OverflowPolicy) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf:    make([]T, capacity),
		policy: policy,
		signal: make(chan struct{}, 1),
	}
}

// Push appends v. It returns false when v was rejected (drop-newest on a
// full ring). Under drop-oldest the oldest element is evicted instead and
// Push returns true.
// Thread-safe: may be called from any goroutine.
func (r *Ring[T]) Push(v T) bool {
	r.mu.Lock()
	if r.n == len(r.buf) {
		if r.policy != config.DropOldest {
			r.mu.Unlock()
			r.dropped.Add(1)
			return false
		}
		var zero T
		r.buf[r.head] = zero
		r.head = (r.head + 1) % len(r.buf)
		r.n--
		r.dropped.Add(1)
	}
	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
	r.mu.Unlock()

	// Non-blocking; a buffer of 1 coalesces signals.
	select {
	case r.signal <- struct{}{}:
	default:
	}
	return true
}

// Pop removes and returns the oldest element.
// Returns (zero, false) if the ring is empty.
func (r *Ring[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.n == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return v, true
}

// Wait returns a channel that signals when elements may be available.
func (r *Ring[T]) Wait() <-chan struct{} {
	return r.signal
}

// Len returns the number of queued elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Dropped returns how many elements were lost to overflow.
func (r *Ring[T]) Dropped() int64 {
	return r.dropped.Load()
}

// Reset discards every queued element. The overflow counter is kept.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.head, r.n = 0, 0
}
