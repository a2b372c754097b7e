package engine

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/orchestrator-core/internal/platform/apperrors"
	"github.com/jordigilh/orchestrator-core/internal/platform/logging"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
)

// checkpointAfterNode serializes run's current state and appends it to
// the run's checkpoint log, pruning the oldest entry once the log
// exceeds the engine's MaxCheckpoints. Serialization failures are
// logged and swallowed — a missed checkpoint must never fail the node
// that triggered it (§4.8: the engine stays correct with persistence,
// and by extension checkpointing, disabled).
func (e *Engine) checkpointAfterNode(run *runEntry, nodeName string) {
	blob, err := json.Marshal(run.state)
	if err != nil {
		logrus.WithFields(logging.NewFields().Component("engine").Operation("checkpoint").
			Resource("run", run.state.Context.RunID).ToLogrus()).WithError(err).Error("failed to serialize checkpoint")
		return
	}

	record := model.NewCheckpointRecord(run.state.Context.RunID, nodeName, blob, false)
	run.checkpoint = append(run.checkpoint, record)
	if len(run.checkpoint) > e.cfg.MaxCheckpoints {
		run.checkpoint = run.checkpoint[len(run.checkpoint)-e.cfg.MaxCheckpoints:]
	}
	run.state.CheckpointID = record.CheckpointID
	now := record.CreatedAt
	run.state.LastCheckpointTime = &now
}

// ListCheckpoints returns the checkpoint records retained for runID,
// oldest first.
func (e *Engine) ListCheckpoints(runID string) ([]model.CheckpointRecord, error) {
	run, err := e.getRun(runID)
	if err != nil {
		return nil, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	out := make([]model.CheckpointRecord, len(run.checkpoint))
	copy(out, run.checkpoint)
	return out, nil
}

// LoadCheckpoint deserializes and returns the state stored under
// checkpointID for runID, without mutating the live run.
func (e *Engine) LoadCheckpoint(runID, checkpointID string) (*model.WorkflowState, error) {
	run, err := e.getRun(runID)
	if err != nil {
		return nil, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return e.loadLocked(run, checkpointID)
}

func (e *Engine) loadLocked(run *runEntry, checkpointID string) (*model.WorkflowState, error) {
	for _, c := range run.checkpoint {
		if c.CheckpointID == checkpointID {
			var state model.WorkflowState
			if err := json.Unmarshal(c.StateBlob, &state); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to deserialize checkpoint")
			}
			return &state, nil
		}
	}
	return nil, apperrors.NewNotFoundError("checkpoint " + checkpointID)
}
