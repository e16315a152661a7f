package api

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/runlog"
)

// LogsHandler streams a run's buffered log lines over SSE: the buffered
// history on connect, then, until the client disconnects, a poll of the
// buffer every third of the ping interval that sends any entries beyond the
// count already sent, plus a heartbeat ping. New lines are found by polling
// the buffer, not pushed to the handler.
type LogsHandler struct {
	buffers      *runlog.Buffers
	pingInterval time.Duration
	logger       arbor.ILogger
}

// NewLogsHandler builds a LogsHandler.
func NewLogsHandler(buffers *runlog.Buffers, pingInterval time.Duration, logger arbor.ILogger) *LogsHandler {
	return &LogsHandler{buffers: buffers, pingInterval: pingInterval, logger: logger}
}

type logLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Stream handles GET /api/runs/{id}/logs.
func (h *LogsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(r)
	if !ok {
		http.Error(w, "invalid run id", http.StatusBadRequest)
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

	entries := h.buffers.Snapshot(runID)
	lines := make([]logLine, len(entries))
	for i, e := range entries {
		lines[i] = logLine{Level: e.Level, Message: e.Message}
	}
	sendEvent(w, flusher, "logs", lines)

	lastSent := len(entries)
	pollTicker := time.NewTicker(h.pingInterval / 3)
	pingTicker := time.NewTicker(h.pingInterval)
	defer pollTicker.Stop()
	defer pingTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-pollTicker.C:
			entries := h.buffers.Snapshot(runID)
			if len(entries) > lastSent {
				fresh := entries[lastSent:]
				lines := make([]logLine, len(fresh))
				for i, e := range fresh {
					lines[i] = logLine{Level: e.Level, Message: e.Message}
				}
				sendEvent(w, flusher, "logs", lines)
				lastSent = len(entries)
			}

		case <-pingTicker.C:
			sendEvent(w, flusher, "ping", map[string]string{"timestamp": time.Now().UTC().Format(time.RFC3339)})
		}
	}
}
