package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jordigilh/orchestrator-core/internal/storage/postgres"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var errDriver = errors.New("driver: connection failed")

func newTestState() *model.WorkflowState {
	ctx := model.NewRunContext(model.WorkflowCodeCommit, "tester")
	target := model.NewScanTarget("/repo")
	state := model.NewWorkflowState(ctx, target, []string{"semgrep"})
	state.AddNodeResult(model.NodeResult{NodeName: "initialize", Status: model.StatusSuccess})
	return state
}

var _ = Describe("Store", func() {
	var (
		db   *sqlx.DB
		mock sqlmock.Sqlmock
		st   *postgres.Store
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, mockSQL, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		Expect(err).NotTo(HaveOccurred())

		db = sqlx.NewDb(mockDB, "sqlmock")
		mock = mockSQL
		st = postgres.NewStore(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("SaveRun", func() {
		It("upserts the run snapshot", func() {
			mock.ExpectExec(`INSERT INTO workflow_runs`).
				WillReturnResult(sqlmock.NewResult(1, 1))

			Expect(st.SaveRun(ctx, newTestState())).To(Succeed())
		})

		It("wraps a driver error as a persistence error", func() {
			mock.ExpectExec(`INSERT INTO workflow_runs`).
				WillReturnError(errDriver)

			err := st.SaveRun(ctx, newTestState())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed to save run"))
		})
	})

	Describe("GetRun", func() {
		It("deserializes the stored snapshot", func() {
			state := newTestState()
			blob := `{"context":{"run_id":"` + state.Context.RunID + `","workflow_kind":"CODE_COMMIT"},"status":"SUCCESS"}`
			rows := sqlmock.NewRows([]string{"state_snapshot"}).AddRow(blob)
			mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM workflow_runs WHERE run_id = $1`)).
				WithArgs(state.Context.RunID).
				WillReturnRows(rows)

			got, err := st.GetRun(ctx, state.Context.RunID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.StatusSuccess))
		})

		It("returns a not-found error when no row matches", func() {
			mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM workflow_runs WHERE run_id = $1`)).
				WithArgs("missing").
				WillReturnError(errDriver)

			_, err := st.GetRun(ctx, "missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("DeleteRun", func() {
		It("cascades task_executions, then checkpoints, then the run row, in order", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM workflow_runs WHERE run_id = $1`)).
				WithArgs("run-1").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
			mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM task_executions WHERE workflow_run_id = $1`)).
				WithArgs(int64(7)).
				WillReturnResult(sqlmock.NewResult(0, 2))
			mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM workflow_checkpoints WHERE workflow_run_id = $1`)).
				WithArgs(int64(7)).
				WillReturnResult(sqlmock.NewResult(0, 3))
			mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM workflow_runs WHERE id = $1`)).
				WithArgs(int64(7)).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			Expect(st.DeleteRun(ctx, "run-1")).To(Succeed())
		})

		It("rolls back and reports not-found when the run does not exist", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM workflow_runs WHERE run_id = $1`)).
				WithArgs("missing").
				WillReturnError(errDriver)
			mock.ExpectRollback()

			err := st.DeleteRun(ctx, "missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("SaveCheckpoint and ListCheckpoints", func() {
		It("looks up the run's surrogate id before inserting", func() {
			rec := model.NewCheckpointRecord("run-1", "scan", []byte(`{}`), false)

			mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM workflow_runs WHERE run_id = $1`)).
				WithArgs("run-1").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
			mock.ExpectExec(`INSERT INTO workflow_checkpoints`).
				WillReturnResult(sqlmock.NewResult(1, 1))

			Expect(st.SaveCheckpoint(ctx, "run-1", rec)).To(Succeed())
		})

		It("returns checkpoints newest first", func() {
			now := time.Now()
			rows := sqlmock.NewRows([]string{"checkpoint_id", "run_id", "node_name", "state_data", "byte_size", "compressed", "created_at", "meta"}).
				AddRow("cp-2", "run-1", "collect", []byte(`{}`), 2, false, now, nil).
				AddRow("cp-1", "run-1", "scan", []byte(`{}`), 2, false, now.Add(-time.Minute), nil)

			mock.ExpectQuery(`SELECT checkpoint_id, run_id, node_name, state_data, byte_size, compressed, created_at, meta\s+FROM workflow_checkpoints`).
				WithArgs("run-1").
				WillReturnRows(rows)

			got, err := st.ListCheckpoints(ctx, "run-1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].CheckpointID).To(Equal("cp-2"))
		})
	})

	Describe("SaveTaskExecution", func() {
		It("looks up the run and inserts the task row", func() {
			mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM workflow_runs WHERE run_id = $1`)).
				WithArgs("run-1").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
			mock.ExpectExec(`INSERT INTO task_executions`).
				WillReturnResult(sqlmock.NewResult(1, 1))

			result := model.ToolExecutionResult{
				ToolID: "semgrep", Status: model.StatusSuccess, StartTime: time.Now(),
			}
			Expect(st.SaveTaskExecution(ctx, "run-1", "scan", model.NodeScan, result)).To(Succeed())
		})
	})
})
