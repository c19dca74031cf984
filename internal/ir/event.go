package ir

import "time"

// InputEvent is one scan event as accepted by the engine.
// Seq is stamped by the engine when the event is queued.
type InputEvent struct {
	Seq      int64         `json:"seq"`
	ScanCode ScanCode      `json:"scan_code"`
	Edge     EdgeKind      `json:"edge"`
	Time     time.Duration `json:"time"`
	Value    int32         `json:"value,omitempty"`
}

// Phase is the capability state an action is emitted in.
type Phase string

const (
	PhasePress   Phase = "press"
	PhaseRepeat  Phase = "repeat"
	PhaseRelease Phase = "release"
)

// Action is one capability invocation emitted to the output queue.
type Action struct {
	Seq        int64            `json:"seq"`
	Time       time.Duration    `json:"time"`
	Trigger    int              `json:"trigger"`
	Result     int              `json:"result"`
	Capability int              `json:"capability"`
	Name       string           `json:"name"`
	Phase      Phase            `json:"phase"`
	Params     [MaxParams]int32 `json:"params"`
	NParams    int              `json:"n_params"`
}

// Args returns the populated prefix of Params.
func (a *Action) Args() []int32 {
	return a.Params[:a.NParams]
}
