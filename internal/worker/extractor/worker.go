// Package extractor implements the extractor worker: pulls extract
// messages, loads the crawled raw content, runs the company adapter's
// parse_raw, and records the job ready. The SimHash fingerprint was
// already computed and persisted by the crawler over the raw bytes; this
// worker never recomputes one.
package extractor

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/adapters"
	"github.com/zduanx/jobtrawl/internal/content"
	"github.com/zduanx/jobtrawl/internal/errs"
	"github.com/zduanx/jobtrawl/internal/finalizer"
	"github.com/zduanx/jobtrawl/internal/models"
	"github.com/zduanx/jobtrawl/internal/state"
)

// Worker processes extract messages. Unlike the crawler, extraction has
// no natural per-company ordering requirement — postings are parsed
// independently of one another — so the extractor pool simply runs with a
// reserved concurrency ceiling tied to the state store's connection pool.
type Worker struct {
	registry  *adapters.Registry
	runs      *state.RunStore
	jobs      *state.JobStore
	content   *content.Store
	finalizer *finalizer.Finalizer
	logger    arbor.ILogger
}

// New builds an extractor Worker.
func New(registry *adapters.Registry, runs *state.RunStore, jobs *state.JobStore, contentStore *content.Store, f *finalizer.Finalizer, logger arbor.ILogger) *Worker {
	return &Worker{registry: registry, runs: runs, jobs: jobs, content: contentStore, finalizer: f, logger: logger}
}

// Handle is a queue.Handler for the extract queue.
func (w *Worker) Handle(ctx context.Context, raw []byte, attempt, maxReceive int) error {
	var msg models.ExtractMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		w.logger.Warn().Err(err).Msg("failed to decode extract message")
		return err
	}

	run, err := w.runs.Get(ctx, msg.RunID)
	if err != nil {
		w.logger.Warn().Err(err).Int64("run_id", msg.RunID).Msg("failed to load owning run")
		return err
	}
	if run.Status != models.RunStatusIngesting {
		w.logger.Info().Int64("run_id", msg.RunID).Int64("job_id", msg.JobID).Str("status", string(run.Status)).
			Msg("run is no longer ingesting, discarding extract message")
		return nil
	}

	err = w.process(ctx, msg)
	if err != nil {
		w.logger.Warn().Err(err).Int64("job_id", msg.JobID).Str("company", msg.Company).Msg("extraction failed")
		if errs.IsRetryable(err) && attempt < maxReceive {
			return err
		}
		if markErr := w.jobs.MarkError(ctx, msg.JobID, err.Error()); markErr != nil {
			w.logger.Warn().Err(markErr).Int64("job_id", msg.JobID).Msg("failed to mark job error")
		}
	}

	if finalizeErr := w.finalizer.TryFinalize(ctx, msg.RunID); finalizeErr != nil {
		w.logger.Warn().Err(finalizeErr).Int64("run_id", msg.RunID).Msg("finalize check failed")
	}
	return err
}

func (w *Worker) process(ctx context.Context, msg models.ExtractMessage) error {
	adapter, ok := w.registry.Get(msg.Company)
	if !ok {
		return &errs.FormatError{Company: msg.Company, Err: errNoAdapter}
	}

	raw, err := w.content.Get(msg.RawContentPath)
	if err != nil {
		return err
	}

	parsed, err := adapter.ParseRaw(ctx, raw)
	if err != nil {
		return err
	}

	return w.jobs.MarkReady(ctx, msg.JobID, parsed.Title, parsed.Location, parsed.Description, parsed.Requirements)
}

var errNoAdapter = noAdapterError{}

type noAdapterError struct{}

func (noAdapterError) Error() string { return "no adapter registered for company" }
