package engine

import (
	"fmt"

	"github.com/roach88/kllcore/internal/ir"
)

// ReplayResult compares the actions of a recorded run with a re-run.
type ReplayResult struct {
	Ticks    int         `json:"ticks"`
	Expected []ir.Action `json:"-"`
	Actual   []ir.Action `json:"-"`

	// Divergence is the index of the first differing action, or -1.
	Divergence int `json:"divergence"`

	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
}

// Match reports whether the re-run reproduced the recorded actions exactly.
func (r *ReplayResult) Match() bool {
	return r.Divergence < 0
}

// Replay re-runs recorded ticks against a fresh engine loaded with ts and
// compares the emitted actions, seqs and timestamps included, with the
// recorded ones.
//
// Only relative timestamps matter, so a recorded run replays identically
// regardless of when it is replayed. The fresh engine must be configured
// like the recording one (opts), including its capability registry.
func Replay(ts *ir.TableSet, ticks []TickRecord, opts ...Option) (*ReplayResult, error) {
	journal := NewMemoryJournal()
	eng := New(append(opts, WithJournal(journal))...)
	if err := eng.Load(ts); err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}

	res := &ReplayResult{Ticks: len(ticks), Divergence: -1}
	for _, t := range ticks {
		for _, ev := range t.Events {
			if err := eng.Push(ev); err != nil {
				return nil, fmt.Errorf("tick %d: push event seq %d: %w", t.Tick, ev.Seq, err)
			}
		}
		eng.Tick(t.Now)
		eng.DrainActions()
		res.Expected = append(res.Expected, t.Actions...)
	}
	res.Actual = journal.Actions()

	n := min(len(res.Expected), len(res.Actual))
	for i := 0; i < n; i++ {
		if res.Expected[i] != res.Actual[i] {
			res.Divergence = i
			break
		}
	}
	if res.Divergence < 0 && len(res.Expected) != len(res.Actual) {
		res.Divergence = n
	}

	var err error
	if res.ExpectedHash, err = ir.TraceHash(res.Expected); err != nil {
		return nil, fmt.Errorf("hash recorded trace: %w", err)
	}
	if res.ActualHash, err = ir.TraceHash(res.Actual); err != nil {
		return nil, fmt.Errorf("hash replayed trace: %w", err)
	}
	return res, nil
}
