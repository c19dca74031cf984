package engine

import (
	"slices"
	"sync"
	"time"

	"github.com/roach88/kllcore/internal/ir"
)

// TickRecord is everything one tick consumed and produced.
type TickRecord struct {
	Tick    int64
	Now     time.Duration
	Events  []ir.InputEvent
	Actions []ir.Action
}

// Journal receives one record per tick that saw input or produced output.
//
// RecordTick runs on the tick path with the tick lock held; the slices are
// reused after it returns, so implementations must copy what they keep.
// An error is logged and the engine continues.
type Journal interface {
	RecordTick(rec TickRecord) error
}

// MemoryJournal keeps tick records in memory. Used by tests and Replay.
type MemoryJournal struct {
	mu    sync.Mutex
	ticks []TickRecord
}

// NewMemoryJournal creates an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// RecordTick implements Journal.
func (j *MemoryJournal) RecordTick(rec TickRecord) error {
	rec.Events = slices.Clone(rec.Events)
	rec.Actions = slices.Clone(rec.Actions)
	j.mu.Lock()
	j.ticks = append(j.ticks, rec)
	j.mu.Unlock()
	return nil
}

// Ticks returns a copy of the recorded ticks in order.
func (j *MemoryJournal) Ticks() []TickRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.ticks)
}

// Actions returns every recorded action in emission order.
func (j *MemoryJournal) Actions() []ir.Action {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []ir.Action
	for _, t := range j.ticks {
		out = append(out, t.Actions...)
	}
	return out
}
