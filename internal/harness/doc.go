// Package harness runs keyboard scenarios against a real engine.
//
// A scenario names a table source, optional engine settings and a script of
// ticks. Each tick feeds its events and then advances the engine to the
// tick's time; the actions the engine emits form the trace that assertions
// and golden files check.
//
// # Scenario Format
//
//	name: combo_jk
//	description: "j and k together send Escape"
//	tables: ../tables/demo.cue
//	config:
//	  combo_window: 50ms
//	ticks:
//	  - at: 0
//	    events:
//	      - {scan: 6, edge: press}
//	  - at: 20
//	    events:
//	      - {scan: 7, edge: press}
//	      - {board: 1, scan: 2, edge: press}
//	assertions:
//	  - type: action_contains
//	    capability: hid.keyboard
//	    params: [41]
//	  - type: record_status
//	    trigger: jk
//	    status: held_active
//
// Event times default to their tick's time. An event with a board is a
// local scan code translated through the interconnect offset table.
//
// # Assertion Types
//
//   - action_contains: an action with the capability (and optional trigger,
//     result, phase, params) was emitted
//   - action_order: results fired in the listed order
//   - action_count: a capability was emitted exactly N times
//   - no_actions: nothing was emitted
//   - record_status: a trigger's record ended in the given status
//   - layer_stack: the active layers, bottom to top, match exactly
//   - events_rejected: exactly N events were refused at ingress
//
// # Deterministic Testing
//
// Scenarios run on a fresh engine with the standard capability set. Time is
// the scripted tick time, never the wall clock, and seqs start at 1, so a
// scenario always produces the same trace and golden files compare byte for
// byte.
package harness
