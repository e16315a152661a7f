package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/models"
	"github.com/zduanx/jobtrawl/internal/state"
)

// ProgressHandler streams a run's job-level progress over SSE: a full
// snapshot on connect, then incremental diffs as jobs change status, until
// the run reaches a terminal status.
type ProgressHandler struct {
	runs         *state.RunStore
	jobs         *state.JobStore
	pollInterval time.Duration
	pingInterval time.Duration
	logger       arbor.ILogger
}

// NewProgressHandler builds a ProgressHandler.
func NewProgressHandler(runs *state.RunStore, jobs *state.JobStore, pollInterval, pingInterval time.Duration, logger arbor.ILogger) *ProgressHandler {
	return &ProgressHandler{runs: runs, jobs: jobs, pollInterval: pollInterval, pingInterval: pingInterval, logger: logger}
}

// jobEntry is one posting's row within an all_jobs snapshot.
type jobEntry struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
}

// Stream handles GET /api/runs/{id}/progress.
func (h *ProgressHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	runID, ok := runIDFromPath(r)
	if !ok {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	run, err := h.runs.GetOwned(r.Context(), runID, userID)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	jobs, err := h.jobs.ListForRun(r.Context(), runID)
	if err != nil {
		h.logger.Error().Err(err).Int64("run_id", runID).Msg("failed to list jobs for snapshot")
		return
	}
	since := time.Now().UTC()
	sendEvent(w, flusher, "all_jobs", groupAllJobs(jobs))
	h.sendRunStatus(w, flusher, run)

	if run.Status.Terminal() {
		return
	}

	pollTicker := time.NewTicker(h.pollInterval)
	pingTicker := time.NewTicker(h.pingInterval)
	defer pollTicker.Stop()
	defer pingTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-pollTicker.C:
			updated, err := h.jobs.ListUpdatedSince(r.Context(), runID, since)
			if err != nil {
				h.logger.Warn().Err(err).Int64("run_id", runID).Msg("failed to poll job updates")
				continue
			}
			if len(updated) > 0 {
				since = time.Now().UTC()
				sendEvent(w, flusher, "update", groupUpdates(updated))
			}

			current, err := h.runs.Get(r.Context(), runID)
			if err != nil {
				h.logger.Warn().Err(err).Int64("run_id", runID).Msg("failed to poll run status")
				continue
			}
			if current.Status.Terminal() {
				final, err := h.jobs.ListForRun(r.Context(), runID)
				if err != nil {
					h.logger.Warn().Err(err).Int64("run_id", runID).Msg("failed to list jobs for final snapshot")
				} else {
					sendEvent(w, flusher, "all_jobs", groupAllJobs(final))
				}
				h.sendRunStatus(w, flusher, current)
				return
			}
			h.sendRunStatus(w, flusher, current)

		case <-pingTicker.C:
			sendEvent(w, flusher, "ping", map[string]string{"timestamp": time.Now().UTC().Format(time.RFC3339)})
		}
	}
}

// sendRunStatus writes the run status as the bare string (not JSON-quoted).
func (h *ProgressHandler) sendRunStatus(w http.ResponseWriter, flusher http.Flusher, run *models.Run) {
	fmt.Fprintf(w, "event: status\n")
	fmt.Fprintf(w, "data: %s\n\n", run.Status)
	flusher.Flush()
}

// groupAllJobs reshapes a run's jobs into the §6 all_jobs snapshot:
// company -> list of {external_id, title, status}.
func groupAllJobs(jobs []models.Job) map[string][]jobEntry {
	out := make(map[string][]jobEntry)
	for _, j := range jobs {
		out[j.Company] = append(out[j.Company], jobEntry{
			ExternalID: j.ExternalID, Title: j.Title, Status: string(j.Status),
		})
	}
	return out
}

// groupUpdates reshapes changed jobs into the §6 update diff:
// company -> {external_id: status}.
func groupUpdates(jobs []models.Job) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, j := range jobs {
		if out[j.Company] == nil {
			out[j.Company] = make(map[string]string)
		}
		out[j.Company][j.ExternalID] = string(j.Status)
	}
	return out
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
