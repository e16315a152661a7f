package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/companies"
	"github.com/zduanx/jobtrawl/internal/errs"
	"github.com/zduanx/jobtrawl/internal/initializer"
	"github.com/zduanx/jobtrawl/internal/runlog"
	"github.com/zduanx/jobtrawl/internal/state"
)

// RunHandler exposes the run-controller endpoints: start, current, abort.
type RunHandler struct {
	runs      *state.RunStore
	jobs      *state.JobStore
	settings  companies.SettingsProvider
	runner    RunLauncher
	buffers   *runlog.Buffers
	logger    arbor.ILogger
}

// RunLauncher starts the initialization phase for a newly-created run. The
// app wires this to a goroutine that calls initializer.Initializer.Run;
// the crawl/extract worker pools, started once at app startup, drain what
// it enqueues. The HTTP handler itself never blocks on ingestion completing.
type RunLauncher interface {
	Launch(ctx context.Context, runID int64, userID string, companyConfigs []initializer.CompanyConfig)
}

// NewRunHandler builds a RunHandler.
func NewRunHandler(runs *state.RunStore, jobs *state.JobStore, settings companies.SettingsProvider, runner RunLauncher, buffers *runlog.Buffers, logger arbor.ILogger) *RunHandler {
	return &RunHandler{runs: runs, jobs: jobs, settings: settings, runner: runner, buffers: buffers, logger: logger}
}

type startRequest struct {
	Force bool `json:"force"`
}

type runResponse struct {
	RunID        int64  `json:"run_id"`
	Status       string `json:"status"`
	TotalJobs    int    `json:"total_jobs,omitempty"`
	JobsReady    int    `json:"jobs_ready,omitempty"`
	JobsSkipped  int    `json:"jobs_skipped,omitempty"`
	JobsExpired  int    `json:"jobs_expired,omitempty"`
	JobsFailed   int    `json:"jobs_failed,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Start handles POST /api/runs: creates a new run for the caller, unless
// one is already active, and launches initialization in the background.
func (h *RunHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	existing, err := h.runs.CurrentForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, runResponse{RunID: existing.ID, Status: string(existing.Status)})
		return
	}

	var req startRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	runID, err := h.runs.Create(r.Context(), userID, req.Force)
	if err != nil {
		h.writeError(w, err)
		return
	}

	configs, err := h.settings.CompaniesFor(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.buffers.Append(runID, "info", "run created")
	h.runner.Launch(context.Background(), runID, userID, configs)

	writeJSON(w, http.StatusAccepted, runResponse{RunID: runID, Status: "pending"})
}

// Current handles GET /api/runs/current: returns the caller's active run,
// or 404 if none is in progress.
func (h *RunHandler) Current(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	run, err := h.runs.CurrentForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if run == nil {
		http.Error(w, "no active run", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(run.ID, string(run.Status), run.TotalJobs, run.JobsReady, run.JobsSkipped, run.JobsExpired, run.JobsFailed, run.ErrorMessage))
}

// Abort handles POST /api/runs/{id}/abort: force-transitions the run to
// aborted, if it belongs to the caller and is still in progress.
func (h *RunHandler) Abort(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	runID, ok := runIDFromPath(r)
	if !ok {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	run, err := h.runs.GetOwned(r.Context(), runID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if run.Status.Terminal() {
		writeJSON(w, http.StatusConflict, runResponse{RunID: run.ID, Status: string(run.Status)})
		return
	}

	counters, err := h.jobs.CountersForRun(r.Context(), runID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if _, err := h.runs.Abort(r.Context(), runID, counters); err != nil {
		h.writeError(w, err)
		return
	}
	h.buffers.Append(runID, "warn", "run aborted by user")

	writeJSON(w, http.StatusOK, runResponse{RunID: runID, Status: "aborted"})
}

func toRunResponse(id int64, status string, total, ready, skipped, expired, failed int, errMsg string) runResponse {
	return runResponse{
		RunID: id, Status: status, TotalJobs: total,
		JobsReady: ready, JobsSkipped: skipped, JobsExpired: expired, JobsFailed: failed,
		ErrorMessage: errMsg,
	}
}

func (h *RunHandler) writeError(w http.ResponseWriter, err error) {
	var ownership *errs.OwnershipError
	var conflict *errs.ConflictError
	switch {
	case errors.Is(err, errs.ErrRunNotFound):
		http.Error(w, "run not found", http.StatusNotFound)
	case errors.As(err, &ownership):
		http.Error(w, "run not found", http.StatusNotFound)
	case errors.As(err, &conflict):
		http.Error(w, conflict.Error(), http.StatusConflict)
	default:
		h.logger.Error().Err(err).Msg("run handler error")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
