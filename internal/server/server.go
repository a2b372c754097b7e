// Package server wires the Orchestrator facade onto an HTTP surface: a
// chi router exposing the run lifecycle and template discovery (New),
// plus a separate lightweight router for health checks and Prometheus
// scraping (HealthHandler) meant to run on its own port. Both are built
// from explicit dependencies rather than package-level state, so either
// can be mounted in httptest without a running process.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/orchestrator-core/internal/platform/apperrors"
	"github.com/jordigilh/orchestrator-core/internal/platform/logging"
	"github.com/jordigilh/orchestrator-core/internal/platform/metrics"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
	"github.com/jordigilh/orchestrator-core/internal/workflow/orchestrator"
)

// Server holds the dependencies every handler closes over.
type Server struct {
	orch    *orchestrator.Orchestrator
	metrics *metrics.Metrics
	log     *logrus.Logger
}

// New builds the chi router for the /api/v1 run operations. orch is
// required; metrics may be nil, in which case request metrics are not
// recorded. /metrics is not served by this router (see HealthHandler).
func New(orch *orchestrator.Orchestrator, m *metrics.Metrics, log *logrus.Logger) http.Handler {
	s := &Server{orch: orch, metrics: m, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/templates", s.handleListTemplates)

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.handleCreateRun)
			r.Get("/", s.handleListRuns)

			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Post("/execute", s.handleExecuteRun)
				r.Post("/pause", s.handlePauseRun)
				r.Post("/resume", s.handleResumeRun)
				r.Post("/cancel", s.handleCancelRun)
				r.Delete("/", s.handleDeleteRun)
				r.Get("/checkpoints", s.handleListCheckpoints)
			})
		})
	})

	return r
}

// HealthHandler builds the lightweight router served on the health port:
// liveness and Prometheus scraping, kept off the main API port so a
// load balancer probing /health never competes with run traffic.
func HealthHandler(m *metrics.Metrics) http.Handler {
	s := &Server{metrics: m}
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metricsHandler())
	return r
}

func (s *Server) metricsHandler() http.Handler {
	if s.metrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		})
	}
	return s.metrics.Handler()
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(ww.Status()), time.Since(started))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "orchestrator-core",
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.ListTemplates())
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req model.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewValidationError("request body is not valid JSON"))
		return
	}

	var (
		runID string
		err   error
	)
	if req.WorkflowKind == model.WorkflowCustom {
		writeError(w, apperrors.NewValidationError("CUSTOM workflows are not yet supported over HTTP — use CreateCustomRun directly"))
		return
	}
	runID, err = s.orch.CreateRun(orchestrator.CreateRunRequest{
		WorkflowKind: req.WorkflowKind,
		Target:       req.Target,
		ToolIDs:      req.ToolIDs,
		Config:       req.Config,
		CreatedBy:    req.CreatedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, model.ExecutionResponse{
		RunID:     runID,
		Status:    model.StatusPending,
		Message:   "run created",
		CreatedAt: time.Now(),
	})
}

func (s *Server) handleExecuteRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	state, err := s.orch.ExecuteRun(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(state))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	state, err := s.orch.State(runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(state))
}

func (s *Server) handlePauseRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.orch.Pause(runID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "status": model.StatusPaused})
}

func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	checkpointID := r.URL.Query().Get("checkpoint_id")
	state, err := s.orch.Resume(r.Context(), runID, checkpointID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(state))
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.orch.Cancel(runID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "status": model.StatusCancelled})
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.orch.Delete(runID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	cps, err := s.orch.ListCheckpoints(runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cps)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	var statusFilter *model.Status
	if v := r.URL.Query().Get("status"); v != "" {
		st := model.Status(v)
		statusFilter = &st
	}
	var kindFilter *model.WorkflowKind
	if v := r.URL.Query().Get("workflow_kind"); v != "" {
		k := model.WorkflowKind(v)
		kindFilter = &k
	}

	if persisted := r.URL.Query().Get("persisted"); persisted == "true" {
		runs, err := s.orch.ListRuns(r.Context(), statusFilter, kindFilter, limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.List(statusFilter))
}

func toStatusResponse(state *model.WorkflowState) model.StatusResponse {
	summary := state.Summarize()
	return model.StatusResponse{
		RunID:         state.Context.RunID,
		WorkflowKind:  state.Context.WorkflowKind,
		Status:        state.Status,
		CurrentNode:   state.CurrentNode,
		StartTime:     state.StartTime,
		EndTime:       state.EndTime,
		DurationSec:   summary.DurationSec,
		TotalFindings: summary.TotalFindings,
		NodeResults:   state.NodeResults,
		Errors:        state.Errors,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrorTypeInternal, "an internal error occurred")
	}
	log := logging.NewFields().Component("server").Operation("handle_error").ToLogrus()
	logrus.WithFields(log).WithError(appErr).Warn("request failed")
	writeJSON(w, appErr.StatusCode, map[string]any{
		"error": appErr.Message,
	})
}
