package engine

import (
	"sync/atomic"
	"time"
)

// Clock is the monotonic sequence counter that orders events and actions.
//
// Every dequeued event and every emitted action is stamped with a strictly
// increasing seq. A fresh engine starts at 0, so replaying the same input
// against fresh records reproduces the same seqs.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// In practice only the tick path calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// TimeSource supplies monotonic timestamps for the Run loop.
// Only differences between timestamps matter.
type TimeSource interface {
	Now() time.Duration
}

// MonotonicTime measures time since its creation using the runtime's
// monotonic clock.
type MonotonicTime struct {
	start time.Time
}

// NewMonotonicTime starts a monotonic time source at zero.
func NewMonotonicTime() *MonotonicTime {
	return &MonotonicTime{start: time.Now()}
}

// Now returns the elapsed time since the source was created.
func (m *MonotonicTime) Now() time.Duration {
	return time.Since(m.start)
}
