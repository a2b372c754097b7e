package engine_test

import (
	"context"
	"time"

	"github.com/jordigilh/orchestrator-core/internal/toolkit/registry"
	"github.com/jordigilh/orchestrator-core/internal/workflow/engine"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
	"github.com/jordigilh/orchestrator-core/internal/workflow/templates"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newEngine(reg *registry.Registry) *engine.Engine {
	return engine.New(reg, templates.NewRegistry(), engine.DefaultConfig())
}

var _ = Describe("Engine", func() {
	var (
		ctx context.Context
		reg *registry.Registry
	)

	BeforeEach(func() {
		ctx = context.Background()
		reg = registry.New()
	})

	Context("Scenario A: CODE_COMMIT happy path", func() {
		It("runs the full node sequence and ends SUCCESS", func() {
			reg.Register(&stubAdapter{id: "stub-sast", findings: []model.Finding{
				findingWith(model.SeverityHigh, 80),
				findingWith(model.SeverityMedium, 80),
			}})
			e := newEngine(reg)

			runID, err := e.Create(model.WorkflowCodeCommit, model.NewScanTarget("./fixtures/ok"), []string{"stub-sast"}, nil, "tester")
			Expect(err).NotTo(HaveOccurred())

			state, err := e.Execute(ctx, runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Status).To(Equal(model.StatusSuccess))

			names := make([]string, len(state.NodeResults))
			for i, nr := range state.NodeResults {
				names[i] = nr.NodeName
				Expect(nr.Status).To(Equal(model.StatusSuccess))
			}
			Expect(names).To(Equal([]string{"initialize", "scan", "collect", "finalize"}))
			Expect(state.Findings).To(HaveLen(2))

			collectNode := state.NodeResults[2]
			hist := collectNode.Output["severity_histogram"].(map[string]int)
			Expect(hist["HIGH"]).To(Equal(1))
			Expect(hist["MEDIUM"]).To(Equal(1))
		})
	})

	Context("Scenario B: EMERGENCY_VULN fan-out", func() {
		It("runs tools in parallel under the template's parallelism", func() {
			reg.Register(&stubAdapter{id: "sast", delay: 200 * time.Millisecond, findings: []model.Finding{findingWith(model.SeverityHigh, 80)}})
			reg.Register(&stubAdapter{id: "sca", delay: 200 * time.Millisecond, findings: []model.Finding{findingWith(model.SeverityLow, 80)}})
			e := newEngine(reg)

			runID, err := e.Create(model.WorkflowEmergencyVuln, model.NewScanTarget("./fixtures/ok"), []string{"sast", "sca"}, nil, "tester")
			Expect(err).NotTo(HaveOccurred())

			start := time.Now()
			state, err := e.Execute(ctx, runID)
			elapsed := time.Since(start)

			Expect(err).NotTo(HaveOccurred())
			Expect(state.Status).To(Equal(model.StatusSuccess))
			Expect(state.Findings).To(HaveLen(2))
			Expect(elapsed).To(BeNumerically("<", 350*time.Millisecond))
		})
	})

	Context("Scenario C: RELEASE_REGRESSION pause/resume", func() {
		It("pauses at human-review and resumes to finalize", func() {
			reg.Register(&stubAdapter{id: "sast", findings: []model.Finding{findingWith(model.SeverityHigh, 80)}})
			reg.Register(&stubAdapter{id: "sca", findings: []model.Finding{findingWith(model.SeverityMedium, 80)}})
			e := newEngine(reg)

			runID, err := e.Create(model.WorkflowReleaseRegression, model.NewScanTarget("./fixtures/ok"), []string{"sast", "sca"}, nil, "tester")
			Expect(err).NotTo(HaveOccurred())

			state, err := e.Execute(ctx, runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Status).To(Equal(model.StatusPaused))
			Expect(state.CurrentNode).To(Equal("human_review"))

			status, err := e.Status(runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status).To(Equal(model.StatusPaused))
			Expect(status.CurrentNode).To(Equal("human_review"))

			final, err := e.Resume(ctx, runID, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(final.Status).To(Equal(model.StatusSuccess))
			Expect(final.CurrentNode).To(Equal("finalize"))
		})
	})

	Context("Scenario D: ExecutionError + retry", func() {
		It("retries the failed tool through the scheduler, not the whole node", func() {
			reg.Register(&stubAdapter{id: "stub-sast", failTimes: 1})
			cfg := engine.DefaultConfig()
			cfg.BaseRetryDelay = 10 * time.Millisecond
			e := engine.New(reg, templates.NewRegistry(), cfg)

			runID, err := e.Create(model.WorkflowCodeCommit, model.NewScanTarget("./fixtures/ok"),
				[]string{"stub-sast"}, map[string]any{"max_retries": 1}, "tester")
			Expect(err).NotTo(HaveOccurred())

			state, err := e.Execute(ctx, runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Status).To(Equal(model.StatusSuccess))
			Expect(state.RetryCount).To(Equal(1))

			names := make([]string, len(state.NodeResults))
			for i, nr := range state.NodeResults {
				names[i] = nr.NodeName
			}
			Expect(names).To(Equal([]string{"initialize", "scan", "collect", "finalize"}))

			scanNode := state.NodeResults[1]
			Expect(scanNode.RetryCount).To(Equal(1))
			Expect(scanNode.ToolResults).To(HaveLen(1))
			Expect(scanNode.ToolResults[0].Status).To(Equal(model.StatusSuccess))
		})

		It("tolerates a failed tool alongside a succeeding one with max_retries 0", func() {
			reg.Register(&stubAdapter{id: "flaky", failTimes: 100})
			reg.Register(&stubAdapter{id: "stable", findings: []model.Finding{findingWith(model.SeverityLow, 80)}})
			e := newEngine(reg)

			runID, err := e.Create(model.WorkflowCodeCommit, model.NewScanTarget("./fixtures/ok"),
				[]string{"flaky", "stable"}, map[string]any{"max_retries": 0}, "tester")
			Expect(err).NotTo(HaveOccurred())

			state, err := e.Execute(ctx, runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Status).To(Equal(model.StatusSuccess))

			scanNode := state.NodeResults[1]
			Expect(scanNode.Status).To(Equal(model.StatusSuccess))
			var sawFailedTool bool
			for _, tr := range scanNode.ToolResults {
				if tr.ToolID == "flaky" {
					sawFailedTool = true
					Expect(tr.Status).To(Equal(model.StatusFailed))
				}
			}
			Expect(sawFailedTool).To(BeTrue())
		})
	})

	Context("Scenario E: cancel during parallel-scan", func() {
		It("reaches CANCELLED within the grace window", func() {
			reg.Register(&stubAdapter{id: "slow1", delay: 2 * time.Second})
			reg.Register(&stubAdapter{id: "slow2", delay: 2 * time.Second})
			e := newEngine(reg)

			runID, err := e.Create(model.WorkflowEmergencyVuln, model.NewScanTarget("./fixtures/ok"), []string{"slow1", "slow2"}, nil, "tester")
			Expect(err).NotTo(HaveOccurred())

			resultCh := make(chan *model.WorkflowState, 1)
			go func() {
				state, _ := e.Execute(ctx, runID)
				resultCh <- state
			}()

			time.Sleep(200 * time.Millisecond)
			Expect(e.Cancel(runID)).To(Succeed())

			Eventually(resultCh, 2*time.Second).Should(Receive())

			status, err := e.Status(runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status).To(Equal(model.StatusCancelled))

			checkpoints, err := e.ListCheckpoints(runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(checkpoints)).To(BeNumerically(">=", 1))
		})
	})

	Context("Scenario F: delete cascade", func() {
		It("removes the run so status returns NotFound", func() {
			reg.Register(&stubAdapter{id: "stub-sast", findings: []model.Finding{findingWith(model.SeverityHigh, 80)}})
			e := newEngine(reg)

			runID, err := e.Create(model.WorkflowCodeCommit, model.NewScanTarget("./fixtures/ok"), []string{"stub-sast"}, nil, "tester")
			Expect(err).NotTo(HaveOccurred())
			_, err = e.Execute(ctx, runID)
			Expect(err).NotTo(HaveOccurred())

			Expect(e.Delete(runID)).To(Succeed())
			_, err = e.Status(runID)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("boundary behaviors", func() {
		It("fails with zero findings when no tools are registered and none requested", func() {
			e := newEngine(reg)
			runID, err := e.Create(model.WorkflowCodeCommit, model.NewScanTarget("./fixtures/ok"), nil, nil, "tester")
			Expect(err).NotTo(HaveOccurred())

			state, err := e.Execute(ctx, runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Status).To(Equal(model.StatusFailed))
			Expect(state.Findings).To(BeEmpty())
		})

		It("selects every registered tool when tool_ids is empty", func() {
			reg.Register(&stubAdapter{id: "stub-sast", findings: []model.Finding{findingWith(model.SeverityHigh, 80)}})
			e := newEngine(reg)
			runID, err := e.Create(model.WorkflowCodeCommit, model.NewScanTarget("./fixtures/ok"), nil, nil, "tester")
			Expect(err).NotTo(HaveOccurred())

			state, err := e.Execute(ctx, runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Status).To(Equal(model.StatusSuccess))
			Expect(state.ToolIDs).To(ContainElement("stub-sast"))
		})
	})

	Context("cancel idempotence", func() {
		It("is equivalent to a single cancel when called twice", func() {
			reg.Register(&stubAdapter{id: "stub-sast", findings: []model.Finding{findingWith(model.SeverityHigh, 80)}})
			e := newEngine(reg)
			runID, err := e.Create(model.WorkflowCodeCommit, model.NewScanTarget("./fixtures/ok"), []string{"stub-sast"}, nil, "tester")
			Expect(err).NotTo(HaveOccurred())

			Expect(e.Cancel(runID)).To(Succeed())
			Expect(e.Cancel(runID)).To(Succeed())

			status, err := e.Status(runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status).To(Equal(model.StatusCancelled))
		})
	})
})
