package eventstream

import (
	"time"

	"github.com/sightlinelabs/vizbench/pkg/results"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeRecordPersisted is emitted after an evaluation record is persisted.
	EventTypeRecordPersisted = "vizbench.record.persisted"
)

// RecordPersistedEvent is a transport-neutral event payload for a persisted
// evaluation record. Downstream consumers (dashboards, scoring jobs) read
// these instead of tailing the JSONL file.
type RecordPersistedEvent struct {
	SchemaVersion int                      `json:"schema_version"`
	EventType     string                   `json:"event_type"`
	EventID       string                   `json:"event_id"`
	EmittedAt     time.Time                `json:"emitted_at"`
	Source        EventSource              `json:"source"`
	Record        results.EvaluationRecord `json:"record"`
}

// EventSource identifies the run that produced the record.
type EventSource struct {
	RunID     string `json:"run_id,omitempty"`
	ModelName string `json:"model_name"`
	Provider  string `json:"provider,omitempty"`
}
