package ir

// Version constants for the table format and engine.
const (
	// TableVersion is the table blob format version.
	TableVersion = "1"

	// EngineVersion is the kllcore engine version.
	EngineVersion = "0.1.0"
)
