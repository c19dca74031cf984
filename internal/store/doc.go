// Package store provides the SQLite-backed engine journal.
//
// A session is one engine run against one table set. Each tick that saw
// input or produced output is appended with the events it consumed and the
// actions it emitted:
//   - sessions: table name, hash and blob, engine config, engine version
//   - ticks: tick number and engine-relative time
//   - input_events: accepted scan events, keyed by seq
//   - actions: emitted capability invocations, keyed by seq
//
// Events and actions share the engine's seq counter, so ORDER BY seq ASC
// over either table reproduces emission order. Timestamps are stored as
// nanoseconds relative to engine start and are never used for ordering.
//
// The session stores its own table blob so a recorded session can be
// replayed without the original sources (see LoadReplay).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
