// Package finalizer implements the "last worker wins" completion check:
// called by every crawler/extractor worker after it finishes a job, it
// asks whether the run has zero pending jobs left and, if so, races every
// other concurrent caller via a single conditional UPDATE — only the
// caller whose UPDATE actually matches a row performs the transition.
package finalizer

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/models"
	"github.com/zduanx/jobtrawl/internal/state"
)

// Finalizer checks and finalizes runs.
type Finalizer struct {
	runs   *state.RunStore
	jobs   *state.JobStore
	logger arbor.ILogger
}

// New builds a Finalizer.
func New(runs *state.RunStore, jobs *state.JobStore, logger arbor.ILogger) *Finalizer {
	return &Finalizer{runs: runs, jobs: jobs, logger: logger}
}

// TryFinalize should be called after every job reaches a terminal status
// within a run. It is cheap and safe to call from many goroutines
// concurrently: only the pending count is read outside of a transaction,
// and the actual transition is guarded by Finalize's conditional UPDATE,
// so a race between two callers both observing zero-pending results in
// exactly one of them performing the finalization.
func (f *Finalizer) TryFinalize(ctx context.Context, runID int64) error {
	pending, err := f.jobs.CountPendingForRun(ctx, runID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}

	counters, err := f.jobs.CountersForRun(ctx, runID)
	if err != nil {
		return err
	}

	status := models.RunStatusFinished
	errMsg := ""
	if counters.Failed > 0 && counters.Ready == 0 && counters.Skipped == 0 {
		status = models.RunStatusError
		errMsg = "all jobs failed"
	}

	won, err := f.runs.Finalize(ctx, runID, status, counters, errMsg)
	if err != nil {
		return err
	}
	if won {
		f.logger.Info().
			Int64("run_id", runID).
			Str("status", string(status)).
			Int("ready", counters.Ready).
			Int("skipped", counters.Skipped).
			Int("expired", counters.Expired).
			Int("failed", counters.Failed).
			Msg("run finalized")
	}
	return nil
}
