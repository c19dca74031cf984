package harness

import (
	"github.com/roach88/kllcore/internal/engine"
)

// TraceEvent is one emitted action, named through the tables.
type TraceEvent struct {
	Seq        int64   `json:"seq"`
	AtMS       int64   `json:"at_ms"`
	Trigger    string  `json:"trigger"`
	Result     string  `json:"result"`
	Capability string  `json:"capability"`
	Phase      string  `json:"phase"`
	Params     []int32 `json:"params"`
}

// FinalState is the engine state after the last tick.
type FinalState struct {
	// Layers are the active layer names, bottom to top.
	Layers []string `json:"layers"`

	// Records maps each trigger name to its record status.
	Records map[string]string `json:"records"`

	Stats engine.Stats `json:"stats"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Rejected lists the ingress errors of refused events, in script order.
	Rejected []string `json:"rejected,omitempty"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	State FinalState `json:"state"`

	// TableHash identifies the tables the scenario ran against.
	TableHash string `json:"table_hash"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  FinalState{Layers: []string{}, Records: map[string]string{}},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
