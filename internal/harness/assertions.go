package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %dms %s/%s %s(%v) %s\n",
				ev.Seq, ev.AtMS, ev.Trigger, ev.Result, ev.Capability, ev.Params, ev.Phase)
		}
	}

	return buf.String()
}

// matches reports whether ev satisfies every filter set on a.
func matches(ev TraceEvent, a Assertion) bool {
	if a.Capability != "" && ev.Capability != a.Capability {
		return false
	}
	if a.Trigger != "" && ev.Trigger != a.Trigger {
		return false
	}
	if a.Result != "" && ev.Result != a.Result {
		return false
	}
	if a.Phase != "" && ev.Phase != a.Phase {
		return false
	}
	if a.Params != nil && !slices.Equal(ev.Params, a.Params) {
		return false
	}
	return true
}

func describe(a Assertion) string {
	var parts []string
	if a.Capability != "" {
		parts = append(parts, "capability "+a.Capability)
	}
	if a.Trigger != "" {
		parts = append(parts, "trigger "+a.Trigger)
	}
	if a.Result != "" {
		parts = append(parts, "result "+a.Result)
	}
	if a.Phase != "" {
		parts = append(parts, "phase "+a.Phase)
	}
	if a.Params != nil {
		parts = append(parts, fmt.Sprintf("params %v", a.Params))
	}
	return strings.Join(parts, ", ")
}

func assertActionContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertActionContains,
		Expected: "action with " + describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertActionOrder checks that the results first fire in the listed order.
// Other actions may come between them.
func assertActionOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if _, seen := positions[ev.Result]; !seen {
			positions[ev.Result] = i
		}
	}

	for _, name := range a.Results {
		if _, ok := positions[name]; !ok {
			return &AssertionError{
				Type:     AssertActionOrder,
				Expected: fmt.Sprintf("all results present: %v", a.Results),
				Actual:   fmt.Sprintf("missing result: %s", name),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Results); i++ {
		prev, curr := a.Results[i-1], a.Results[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertActionOrder,
				Expected: fmt.Sprintf("results in order: %v", a.Results),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev]+1, curr, positions[curr]+1),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertActionCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertActionCount,
			Expected: fmt.Sprintf("%d actions with %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d actions", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertNoActions(trace []TraceEvent) error {
	if len(trace) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoActions,
		Expected: "no actions",
		Actual:   fmt.Sprintf("%d actions", len(trace)),
		Trace:    trace,
	}
}

func assertRecordStatus(state FinalState, a Assertion) error {
	got, ok := state.Records[a.Trigger]
	if !ok {
		return &AssertionError{
			Type:     AssertRecordStatus,
			Expected: fmt.Sprintf("trigger %s", a.Trigger),
			Actual:   "no such trigger",
		}
	}
	if got != a.Status {
		return &AssertionError{
			Type:     AssertRecordStatus,
			Expected: fmt.Sprintf("%s is %s", a.Trigger, a.Status),
			Actual:   got,
		}
	}
	return nil
}

func assertLayerStack(state FinalState, a Assertion) error {
	if !slices.Equal(state.Layers, a.Layers) {
		return &AssertionError{
			Type:     AssertLayerStack,
			Expected: fmt.Sprintf("layers %v", a.Layers),
			Actual:   fmt.Sprintf("layers %v", state.Layers),
		}
	}
	return nil
}

func assertEventsRejected(rejected []string, a Assertion) error {
	if len(rejected) != a.Count {
		return &AssertionError{
			Type:     AssertEventsRejected,
			Expected: fmt.Sprintf("%d rejected events", a.Count),
			Actual:   fmt.Sprintf("%d rejected %v", len(rejected), rejected),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a message for each failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertActionContains:
			err = assertActionContains(result.Trace, a)
		case AssertActionOrder:
			err = assertActionOrder(result.Trace, a)
		case AssertActionCount:
			err = assertActionCount(result.Trace, a)
		case AssertNoActions:
			err = assertNoActions(result.Trace)
		case AssertRecordStatus:
			err = assertRecordStatus(result.State, a)
		case AssertLayerStack:
			err = assertLayerStack(result.State, a)
		case AssertEventsRejected:
			err = assertEventsRejected(result.Rejected, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
