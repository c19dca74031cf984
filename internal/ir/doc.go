// Package ir provides the table and event types shared by every kllcore package.
//
// This package contains type definitions, canonical JSON and content hashing
// only. All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - positions are micrometres, thresholds are raw levels
//   - All JSON tags use snake_case
//   - Timestamps are monotonic offsets (time.Duration), never wall-clock
//   - Tables are immutable once handed to an engine
package ir
