// Package crawler implements the crawler worker: pulls crawl messages,
// enforces per-company politeness and per-company ordering, fetches the
// posting, fingerprints it, and either skips (unchanged) or hands off to
// the extract queue.
package crawler

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/adapters"
	"github.com/zduanx/jobtrawl/internal/content"
	"github.com/zduanx/jobtrawl/internal/errs"
	"github.com/zduanx/jobtrawl/internal/finalizer"
	"github.com/zduanx/jobtrawl/internal/models"
	"github.com/zduanx/jobtrawl/internal/queue"
	"github.com/zduanx/jobtrawl/internal/ratelimit"
	"github.com/zduanx/jobtrawl/internal/simhash"
	"github.com/zduanx/jobtrawl/internal/state"
)

// Worker processes crawl messages. goqite has no native per-key ordering,
// so per-company ordering is implemented in-process via companyLocks: a
// mutex per company held for the duration of one message's handling,
// ensuring two crawl messages for the same company never run concurrently
// even though the queue itself has no partition key.
type Worker struct {
	registry  *adapters.Registry
	runs      *state.RunStore
	jobs      *state.JobStore
	content   *content.Store
	extract   *queue.Queue
	limiters  *ratelimit.CompanyLimiters
	finalizer *finalizer.Finalizer
	threshold int
	logger    arbor.ILogger

	companyLocksMu sync.Mutex
	companyLocks   map[string]*sync.Mutex
}

// New builds a crawler Worker.
func New(registry *adapters.Registry, runs *state.RunStore, jobs *state.JobStore, contentStore *content.Store, extractQueue *queue.Queue,
	limiters *ratelimit.CompanyLimiters, f *finalizer.Finalizer, threshold int, logger arbor.ILogger) *Worker {
	return &Worker{
		registry:     registry,
		runs:         runs,
		jobs:         jobs,
		content:      contentStore,
		extract:      extractQueue,
		limiters:     limiters,
		finalizer:    f,
		threshold:    threshold,
		logger:       logger,
		companyLocks: make(map[string]*sync.Mutex),
	}
}

// Handle is a queue.Handler for the crawl queue.
func (w *Worker) Handle(ctx context.Context, raw []byte, attempt, maxReceive int) error {
	var msg models.CrawlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		w.logger.Warn().Err(err).Msg("failed to decode crawl message")
		return err
	}

	lock := w.lockFor(msg.Company)
	lock.Lock()
	defer lock.Unlock()

	run, err := w.runs.Get(ctx, msg.RunID)
	if err != nil {
		w.logger.Warn().Err(err).Int64("run_id", msg.RunID).Msg("failed to load owning run")
		return err
	}
	if run.Status != models.RunStatusIngesting {
		w.logger.Info().Int64("run_id", msg.RunID).Int64("job_id", msg.JobID).Str("status", string(run.Status)).
			Msg("run is no longer ingesting, discarding crawl message")
		return nil
	}

	err = w.process(ctx, msg)
	if err != nil {
		w.logger.Warn().Err(err).Int64("job_id", msg.JobID).Str("company", msg.Company).Msg("crawl failed")
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

func (w *Worker) process(ctx context.Context, msg models.CrawlMessage) error {
	if err := w.limiters.Wait(ctx, msg.Company); err != nil {
		return err
	}

	adapter, ok := w.registry.Get(msg.Company)
	if !ok {
		return &errs.FormatError{Company: msg.Company, Err: errNoAdapter}
	}

	raw, err := adapter.FetchRaw(ctx, msg.URL)
	if err != nil {
		return err
	}

	fp := simhash.Fingerprint(string(raw))
	if !msg.Force && msg.HasPrior && simhash.Unchanged(fp, msg.PriorSimHash, w.threshold) {
		return w.jobs.MarkSkipped(ctx, msg.JobID, fp)
	}

	if err := w.jobs.UpdateSimHash(ctx, msg.JobID, fp); err != nil {
		return err
	}

	relPath, err := w.content.Put(msg.Company, msg.URL, raw)
	if err != nil {
		return err
	}

	extractMsg := models.ExtractMessage{
		MessageID:      uuid.NewString(),
		RunID:          msg.RunID,
		JobID:          msg.JobID,
		Company:        msg.Company,
		RawContentPath: relPath,
		UserID:         msg.UserID,
	}
	return w.extract.Enqueue(ctx, extractMsg)
}

func (w *Worker) lockFor(company string) *sync.Mutex {
	w.companyLocksMu.Lock()
	defer w.companyLocksMu.Unlock()

	l, ok := w.companyLocks[company]
	if !ok {
		l = &sync.Mutex{}
		w.companyLocks[company] = l
	}
	return l
}

var errNoAdapter = noAdapterError{}

type noAdapterError struct{}

func (noAdapterError) Error() string { return "no adapter registered for company" }
