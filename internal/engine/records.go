package engine

import (
	"fmt"
	"math/bits"
	"time"
)

// RecordStatus is the lifecycle state of a trigger macro record.
type RecordStatus uint8

const (
	StatusIdle RecordStatus = iota
	StatusPending
	StatusFinished
	StatusHeldActive
)

func (s RecordStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusFinished:
		return "finished"
	case StatusHeldActive:
		return "held_active"
	}
	return fmt.Sprintf("RecordStatus(%d)", uint8(s))
}

// ParseRecordStatus converts the String form back to a RecordStatus.
func ParseRecordStatus(s string) (RecordStatus, error) {
	for st := StatusIdle; st <= StatusHeldActive; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown record status %q", s)
}

// record is the runtime progress of one trigger macro.
type record struct {
	status RecordStatus

	// cursor is the index of the step being matched.
	cursor int
	// sub is the next condition of a sequential step.
	sub int
	// coverage has bit i set once condition i of a combo step was seen.
	coverage uint32

	// deadline is valid while armed; set when the first member of a combo
	// step is seen.
	deadline time.Duration
	armed    bool

	// completedTick is the tick the macro last completed in. Repeats skip it.
	completedTick int64
}

func (r *record) reset() {
	*r = record{completedTick: r.completedTick}
}

// RecordView is a read-only snapshot of a record for diagnostics and tests.
type RecordView struct {
	Status   RecordStatus  `json:"status"`
	Cursor   int           `json:"cursor"`
	Coverage uint32        `json:"coverage"`
	Deadline time.Duration `json:"deadline,omitempty"`
	Armed    bool          `json:"armed"`
}

// recordStore holds exactly one record per trigger macro. It is sized at
// load and never resized.
//
// pending and held index the records in those states so the end-of-tick
// passes touch only live records, in table order.
type recordStore struct {
	records []record
	pending bitset
	held    bitset
}

func newRecordStore(n int) recordStore {
	return recordStore{
		records: make([]record, n),
		pending: newBitset(n),
		held:    newBitset(n),
	}
}

func (s *recordStore) setStatus(i int, st RecordStatus) {
	s.records[i].status = st
	s.pending.assign(i, st == StatusPending)
	s.held.assign(i, st == StatusHeldActive)
}

func (s *recordStore) resetRecord(i int) {
	s.records[i].reset()
	s.pending.assign(i, false)
	s.held.assign(i, false)
}

func (s *recordStore) view(i int) RecordView {
	r := &s.records[i]
	return RecordView{
		Status:   r.status,
		Cursor:   r.cursor,
		Coverage: r.coverage,
		Deadline: r.deadline,
		Armed:    r.armed,
	}
}

// bitset is a fixed-size set of small non-negative integers.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) has(i int) bool {
	w := i / 64
	return w >= 0 && w < len(b) && b[w]&(1<<(uint(i)%64)) != 0
}

func (b bitset) assign(i int, on bool) {
	w := i / 64
	if w < 0 || w >= len(b) {
		return
	}
	if on {
		b[w] |= 1 << (uint(i) % 64)
	} else {
		b[w] &^= 1 << (uint(i) % 64)
	}
}

// next returns the smallest member >= from, or -1.
func (b bitset) next(from int) int {
	if from < 0 {
		from = 0
	}
	w := from / 64
	if w >= len(b) {
		return -1
	}
	word := b[w] &^ ((1 << (uint(from) % 64)) - 1)
	for {
		if word != 0 {
			return w*64 + bits.TrailingZeros64(word)
		}
		w++
		if w >= len(b) {
			return -1
		}
		word = b[w]
	}
}

func (b bitset) clearAll() {
	clear(b)
}
