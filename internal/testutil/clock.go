package testutil

import (
	"sync"
	"time"
)

// ManualTime is a TimeSource tests advance by hand.
//
// Unlike engine.MonotonicTime, ManualTime never moves on its own, so a Run
// loop driven by it ticks at exactly the times the test chooses.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualTime struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManualTime creates a time source starting at 0.
func NewManualTime() *ManualTime {
	return &ManualTime{}
}

// Now returns the current time. Implements engine.TimeSource.
func (m *ManualTime) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves time forward by d and returns the new time.
// A negative d is ignored; time never goes backwards.
func (m *ManualTime) Advance(d time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now += d
	}
	return m.now
}

// Set jumps to t if t is not before the current time.
func (m *ManualTime) Set(t time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t > m.now {
		m.now = t
	}
}

// Reset returns the clock to 0 for test reuse.
func (m *ManualTime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = 0
}
