package ir

// Version constants for the persisted schema and engine.
const (
	// SchemaVersion is the task record schema version.
	SchemaVersion = "1"

	// EngineVersion is the ordering engine version.
	EngineVersion = "0.1.0"
)
