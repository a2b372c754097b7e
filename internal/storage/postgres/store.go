package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jordigilh/orchestrator-core/internal/platform/apperrors"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
)

// Store is the Postgres-backed mirror of a run's state and checkpoint
// history. It never replaces the engine's in-memory run map — it is
// consulted only when the engine has nothing in memory for a run id
// (e.g. after a process restart). The orchestrator holds a *Store
// directly and treats a nil one as persistence disabled.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an already-connected pool (see Connect).
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// runRow is the column-for-column shape of workflow_runs, used both for
// INSERT/UPDATE argument binding and for scanning SELECTs.
type runRow struct {
	ID                   int64      `db:"id"`
	RunID                string     `db:"run_id"`
	WorkflowKind         string     `db:"workflow_kind"`
	Status               string     `db:"status"`
	CurrentNode          *string    `db:"current_node"`
	TargetKind           string     `db:"target_kind"`
	TargetPath           string     `db:"target_path"`
	TargetLanguage       *string    `db:"target_language"`
	TargetMetadata       []byte     `db:"target_metadata"`
	ToolIDs              []byte     `db:"tool_ids"`
	ToolOptions          []byte     `db:"tool_options"`
	TotalFindings        int        `db:"total_findings"`
	TotalErrors          int        `db:"total_errors"`
	NodeCount            int        `db:"node_count"`
	RetryCount           int        `db:"retry_count"`
	CreatedAt            time.Time  `db:"created_at"`
	StartedAt            *time.Time `db:"started_at"`
	CompletedAt          *time.Time `db:"completed_at"`
	DurationSeconds      *float64   `db:"duration_seconds"`
	CreatedBy            *string    `db:"created_by"`
	Config               []byte     `db:"config"`
	Tags                 []byte     `db:"tags"`
	RequiresHumanReview  bool       `db:"requires_human_review"`
	HumanReviewData      []byte     `db:"human_review_data"`
	Errors               []byte     `db:"errors"`
	StateSnapshot        []byte     `db:"state_snapshot"`
}

const upsertRunQuery = `
INSERT INTO workflow_runs (
	run_id, workflow_kind, status, current_node,
	target_kind, target_path, target_language, target_metadata,
	tool_ids, tool_options,
	total_findings, total_errors, node_count, retry_count,
	created_at, started_at, completed_at, duration_seconds,
	created_by, config, tags,
	requires_human_review, human_review_data, errors, state_snapshot
) VALUES (
	:run_id, :workflow_kind, :status, :current_node,
	:target_kind, :target_path, :target_language, :target_metadata,
	:tool_ids, :tool_options,
	:total_findings, :total_errors, :node_count, :retry_count,
	:created_at, :started_at, :completed_at, :duration_seconds,
	:created_by, :config, :tags,
	:requires_human_review, :human_review_data, :errors, :state_snapshot
)
ON CONFLICT (run_id) DO UPDATE SET
	status = EXCLUDED.status,
	current_node = EXCLUDED.current_node,
	tool_ids = EXCLUDED.tool_ids,
	total_findings = EXCLUDED.total_findings,
	total_errors = EXCLUDED.total_errors,
	node_count = EXCLUDED.node_count,
	retry_count = EXCLUDED.retry_count,
	started_at = EXCLUDED.started_at,
	completed_at = EXCLUDED.completed_at,
	duration_seconds = EXCLUDED.duration_seconds,
	requires_human_review = EXCLUDED.requires_human_review,
	human_review_data = EXCLUDED.human_review_data,
	errors = EXCLUDED.errors,
	state_snapshot = EXCLUDED.state_snapshot
`

// SaveRun upserts state as a full snapshot row, keyed on run id. The
// orchestrator calls it once per ExecuteRun/Resume call, after the
// engine returns.
func (s *Store) SaveRun(ctx context.Context, state *model.WorkflowState) error {
	row, err := toRunRow(state)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to marshal run snapshot")
	}
	if _, err := s.db.NamedExecContext(ctx, upsertRunQuery, row); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to save run")
	}
	return nil
}

// GetRun loads the most recently saved full WorkflowState snapshot for
// runID, used to rehydrate a run the in-memory engine has forgotten
// (e.g. after a restart).
func (s *Store) GetRun(ctx context.Context, runID string) (*model.WorkflowState, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM workflow_runs WHERE run_id = $1`, runID)
	if err != nil {
		return nil, apperrors.NewNotFoundError("run " + runID)
	}

	var state model.WorkflowState
	if err := json.Unmarshal(row.StateSnapshot, &state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to deserialize run snapshot")
	}
	return &state, nil
}

// ListRuns returns runs ordered newest-first, optionally filtered by
// status and/or workflow kind.
func (s *Store) ListRuns(ctx context.Context, status *model.Status, kind *model.WorkflowKind, limit, offset int) ([]model.Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT * FROM workflow_runs WHERE 1=1`
	args := map[string]any{"limit": limit, "offset": offset}
	if status != nil {
		query += ` AND status = :status`
		args["status"] = string(*status)
	}
	if kind != nil {
		query += ` AND workflow_kind = :workflow_kind`
		args["workflow_kind"] = string(*kind)
	}
	query += ` ORDER BY created_at DESC LIMIT :limit OFFSET :offset`

	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to prepare list query")
	}
	defer stmt.Close()

	var rows []runRow
	if err := stmt.SelectContext(ctx, &rows, args); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to list runs")
	}

	out := make([]model.Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toSummary())
	}
	return out, nil
}

// DeleteRun cascades task_executions -> checkpoints -> the run row
// itself in explicit order (the foreign keys also carry ON DELETE
// CASCADE; deleting in this order keeps the application logic correct
// even against a database that predates the cascade constraints).
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to begin delete transaction")
	}
	defer tx.Rollback()

	var runRowID int64
	if err := tx.GetContext(ctx, &runRowID, `SELECT id FROM workflow_runs WHERE run_id = $1`, runID); err != nil {
		return apperrors.NewNotFoundError("run " + runID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_executions WHERE workflow_run_id = $1`, runRowID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to delete task executions")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_checkpoints WHERE workflow_run_id = $1`, runRowID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to delete checkpoints")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_runs WHERE id = $1`, runRowID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to delete run")
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to commit delete transaction")
	}
	return nil
}

// SaveCheckpoint persists a single checkpoint row, looking up the run's
// surrogate id by its public run id first.
func (s *Store) SaveCheckpoint(ctx context.Context, runID string, rec model.CheckpointRecord) error {
	var runRowID int64
	if err := s.db.GetContext(ctx, &runRowID, `SELECT id FROM workflow_runs WHERE run_id = $1`, runID); err != nil {
		return apperrors.NewNotFoundError("run " + runID)
	}

	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to marshal checkpoint metadata")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints (
			checkpoint_id, workflow_run_id, run_id, node_name,
			state_data, compressed, byte_size, created_at, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (checkpoint_id) DO NOTHING
	`, rec.CheckpointID, runRowID, runID, rec.NodeName, rec.StateBlob, rec.Compressed, rec.ByteSize, rec.CreatedAt, meta)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to save checkpoint")
	}
	return nil
}

// ListCheckpoints returns runID's checkpoints, newest first, bounded by
// limit (0 means no bound).
func (s *Store) ListCheckpoints(ctx context.Context, runID string, limit int) ([]model.CheckpointRecord, error) {
	query := `SELECT checkpoint_id, run_id, node_name, state_data, byte_size, compressed, created_at, meta
		FROM workflow_checkpoints WHERE run_id = $1 ORDER BY created_at DESC`
	args := []any{runID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	type checkpointRow struct {
		CheckpointID string    `db:"checkpoint_id"`
		RunID        string    `db:"run_id"`
		NodeName     string    `db:"node_name"`
		StateData    []byte    `db:"state_data"`
		ByteSize     int       `db:"byte_size"`
		Compressed   bool      `db:"compressed"`
		CreatedAt    time.Time `db:"created_at"`
		Meta         []byte    `db:"meta"`
	}

	var rows []checkpointRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to list checkpoints")
	}

	out := make([]model.CheckpointRecord, 0, len(rows))
	for _, r := range rows {
		var meta map[string]any
		if len(r.Meta) > 0 {
			_ = json.Unmarshal(r.Meta, &meta)
		}
		out = append(out, model.CheckpointRecord{
			CheckpointID: r.CheckpointID, RunID: r.RunID, NodeName: r.NodeName,
			StateBlob: r.StateData, ByteSize: r.ByteSize, Compressed: r.Compressed,
			CreatedAt: r.CreatedAt, Meta: meta,
		})
	}
	return out, nil
}

// SaveTaskExecution persists one tool/node execution result, used by the
// outer executor to mirror each ToolExecutionResult the engine produces.
func (s *Store) SaveTaskExecution(ctx context.Context, runID, nodeName string, nodeKind model.NodeKind, result model.ToolExecutionResult) error {
	var runRowID int64
	if err := s.db.GetContext(ctx, &runRowID, `SELECT id FROM workflow_runs WHERE run_id = $1`, runID); err != nil {
		return apperrors.NewNotFoundError("run " + runID)
	}

	output, err := json.Marshal(result.Meta)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to marshal task output")
	}

	var duration *float64
	if result.EndTime != nil {
		d := result.Duration().Seconds()
		duration = &d
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_executions (
			task_id, workflow_run_id, run_id, node_name, node_kind,
			tool_id, tool_name, status, finding_count, error_message,
			started_at, completed_at, duration_seconds, output_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (task_id) DO NOTHING
	`, fmt.Sprintf("%s-%s-%d", runID, result.ToolID, result.StartTime.UnixNano()),
		runRowID, runID, nodeName, string(nodeKind),
		result.ToolID, result.ToolName, string(result.Status), result.FindingCount, nullableString(result.Error),
		result.StartTime, result.EndTime, duration, output)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypePersistence, "failed to save task execution")
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toRunRow(state *model.WorkflowState) (runRow, error) {
	stateSnapshot, err := json.Marshal(state)
	if err != nil {
		return runRow{}, err
	}
	targetMetadata, err := json.Marshal(state.Target.Metadata)
	if err != nil {
		return runRow{}, err
	}
	toolIDs, err := json.Marshal(state.ToolIDs)
	if err != nil {
		return runRow{}, err
	}
	toolOptions, err := json.Marshal(state.ToolOptions)
	if err != nil {
		return runRow{}, err
	}
	cfg, err := json.Marshal(state.Context.Config)
	if err != nil {
		return runRow{}, err
	}
	tags, err := json.Marshal(state.Context.Tags)
	if err != nil {
		return runRow{}, err
	}
	humanReviewData, err := json.Marshal(state.HumanReviewData)
	if err != nil {
		return runRow{}, err
	}
	errs, err := json.Marshal(state.Errors)
	if err != nil {
		return runRow{}, err
	}

	var durationSeconds *float64
	if state.TotalDuration != nil {
		d := state.TotalDuration.Seconds()
		durationSeconds = &d
	}

	return runRow{
		RunID:               state.Context.RunID,
		WorkflowKind:        string(state.Context.WorkflowKind),
		Status:              string(state.Status),
		CurrentNode:         nullableString(state.CurrentNode),
		TargetKind:          string(state.Target.Kind),
		TargetPath:          state.Target.Path,
		TargetLanguage:      nullableString(state.Target.Language),
		TargetMetadata:      targetMetadata,
		ToolIDs:             toolIDs,
		ToolOptions:         toolOptions,
		TotalFindings:       state.TotalFindings(),
		TotalErrors:         len(state.Errors),
		NodeCount:           len(state.NodeResults),
		RetryCount:          state.RetryCount,
		CreatedAt:           state.Context.CreatedAt,
		StartedAt:           state.StartTime,
		CompletedAt:         state.EndTime,
		DurationSeconds:     durationSeconds,
		CreatedBy:           nullableString(state.Context.CreatedBy),
		Config:              cfg,
		Tags:                tags,
		RequiresHumanReview: state.RequiresHumanReview,
		HumanReviewData:     humanReviewData,
		Errors:              errs,
		StateSnapshot:       stateSnapshot,
	}, nil
}

func (r runRow) toSummary() model.Summary {
	var dur *float64
	if r.DurationSeconds != nil {
		dur = r.DurationSeconds
	}
	currentNode := ""
	if r.CurrentNode != nil {
		currentNode = *r.CurrentNode
	}
	return model.Summary{
		RunID:          r.RunID,
		WorkflowKind:   r.WorkflowKind,
		Status:         model.Status(r.Status),
		CurrentNode:    currentNode,
		CompletedNodes: r.NodeCount,
		TotalFindings:  r.TotalFindings,
		TotalErrors:    r.TotalErrors,
		StartTime:      r.StartedAt,
		EndTime:        r.CompletedAt,
		DurationSec:    dur,
	}
}
