// Package engine implements the trigger-evaluation and layer-resolution core.
//
// An Engine turns an ordered stream of scan events into capability actions,
// driven entirely by a loaded ir.TableSet.
//
// ARCHITECTURE:
//
// Event flow, once per Tick:
//  1. the scan front end pushes events into a bounded ring (any goroutine)
//  2. Tick drains the ring in arrival order and stamps each event's seq
//  3. the resolver walks the layer stack top to bottom for the event's
//     candidate trigger macros; the first layer that defines the scan code
//     wins, even with an empty list
//  4. the evaluator advances each candidate's record in table order
//  5. a completed record dispatches its result macro: one capability call
//     and one output action per entry, in order
//  6. after the events, combos past their window expire, held macros whose
//     keys are up release, and held repeat macros fire once
//
// Capabilities may mutate the layer stack; later events in the same tick
// resolve against the new stack.
//
// All per-macro state is allocated at load: one record per trigger macro,
// a fixed-capacity layer stack and a scan code bitmap. A reload builds a new
// state and swaps it in between ticks.
//
// Determinism:
// Seqs come from a Clock that a fresh engine starts at 0, and the only time
// that matters is the timestamps carried by events and passed to Tick.
// Replaying a journal against a fresh engine reproduces its actions exactly.
package engine
