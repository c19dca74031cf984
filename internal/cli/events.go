package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/roach88/kllcore/internal/ir"
)

// EventSpec is one input event as typed on the command line or stdin:
//
//	press 4          global scan code 4
//	release:4        colons work too
//	rotation 10 -1   value for analog and rotation edges
//	press 1/4        local scan code 4 on board 1
type EventSpec struct {
	Edge  ir.EdgeKind
	Scan  ir.ScanCode
	Value int32

	// Board is the source board for local addressing, or -1.
	Board int
}

// ParseEvent parses an event spec.
func ParseEvent(s string) (EventSpec, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || unicode.IsSpace(r)
	})
	if len(fields) < 2 || len(fields) > 3 {
		return EventSpec{}, fmt.Errorf("event %q: want <edge> <scan> [value]", s)
	}

	edge, err := ir.ParseEdgeKind(fields[0])
	if err != nil {
		return EventSpec{}, fmt.Errorf("event %q: %w", s, err)
	}
	spec := EventSpec{Edge: edge, Board: -1}

	scan := fields[1]
	if board, local, ok := strings.Cut(scan, "/"); ok {
		b, err := strconv.Atoi(board)
		if err != nil || b < 0 {
			return EventSpec{}, fmt.Errorf("event %q: bad board %q", s, board)
		}
		spec.Board = b
		scan = local
	}
	sc, err := strconv.ParseUint(scan, 10, 16)
	if err != nil {
		return EventSpec{}, fmt.Errorf("event %q: bad scan code %q", s, scan)
	}
	spec.Scan = ir.ScanCode(sc)

	if len(fields) == 3 {
		v, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			return EventSpec{}, fmt.Errorf("event %q: bad value %q", s, fields[2])
		}
		spec.Value = int32(v)
	}
	return spec, nil
}

func (e EventSpec) String() string {
	var b strings.Builder
	b.WriteString(string(e.Edge))
	b.WriteByte(' ')
	if e.Board >= 0 {
		fmt.Fprintf(&b, "%d/", e.Board)
	}
	fmt.Fprintf(&b, "%d", e.Scan)
	if e.Value != 0 {
		fmt.Fprintf(&b, " %d", e.Value)
	}
	return b.String()
}

// InputEvent converts a globally addressed spec to an engine event at t.
func (e EventSpec) InputEvent(t time.Duration) ir.InputEvent {
	return ir.InputEvent{ScanCode: e.Scan, Edge: e.Edge, Time: t, Value: e.Value}
}
