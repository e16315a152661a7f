// Package runner wires the initializer and the two worker pools into the
// api.RunLauncher contract: launching a run means running the
// initialization phase to completion (in its own goroutine) and letting
// the already-started crawl/extract worker pools drain whatever it
// enqueues.
package runner

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/initializer"
)

// Runner launches runs in the background.
type Runner struct {
	init   *initializer.Initializer
	logger arbor.ILogger
}

// New builds a Runner.
func New(init *initializer.Initializer, logger arbor.ILogger) *Runner {
	return &Runner{init: init, logger: logger}
}

// Launch implements api.RunLauncher.
func (r *Runner) Launch(ctx context.Context, runID int64, userID string, companyConfigs []initializer.CompanyConfig) {
	go func() {
		if err := r.init.Run(ctx, runID, userID, companyConfigs); err != nil {
			r.logger.Error().Err(err).Int64("run_id", runID).Msg("initialization failed")
		}
	}()
}
