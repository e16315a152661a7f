package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ternarybob/arbor"
)

// NewRouter builds the chi router exposing the run-controller API.
func NewRouter(runHandler *RunHandler, progressHandler *ProgressHandler, logsHandler *LogsHandler, auth Authenticator, logger arbor.ILogger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware())
	r.Use(correlationMiddleware)
	r.Use(requestLogger(logger))

	r.Get("/api/health", healthHandler)

	r.Route("/api/runs", func(r chi.Router) {
		r.Use(authMiddleware(auth))
		r.Post("/", runHandler.Start)
		r.Get("/current", runHandler.Current)
		r.Post("/{id}/abort", runHandler.Abort)
		r.Get("/{id}/progress", progressHandler.Stream)
		r.Get("/{id}/logs", logsHandler.Stream)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func runIDFromPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
