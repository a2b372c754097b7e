package model

import (
	"time"

	"github.com/google/uuid"
)

// CheckpointRecord is an immutable snapshot of a run's state taken at a
// node boundary. Multiple checkpoints accumulate per run and are pruned
// by count only (the engine's MaxCheckpoints, fed from internal/config's
// Checkpoint.MaxPerRun); nothing is pruned by age.
type CheckpointRecord struct {
	CheckpointID string         `json:"checkpoint_id"`
	RunID        string         `json:"run_id"`
	NodeName     string         `json:"node_name"`
	StateBlob    []byte         `json:"state_blob"`
	ByteSize     int            `json:"byte_size"`
	Compressed   bool           `json:"compressed"`
	CreatedAt    time.Time      `json:"created_at"`
	Meta         map[string]any `json:"meta,omitempty"`
}

// NewCheckpointRecord builds a CheckpointRecord from a serialized state
// blob, filling the generated id, byte size, and creation timestamp.
func NewCheckpointRecord(runID, nodeName string, blob []byte, compressed bool) CheckpointRecord {
	return CheckpointRecord{
		CheckpointID: uuid.NewString(),
		RunID:        runID,
		NodeName:     nodeName,
		StateBlob:    blob,
		ByteSize:     len(blob),
		Compressed:   compressed,
		CreatedAt:    time.Now(),
	}
}
