// Package initializer implements the first phase of a run: fanning out
// across every configured company, listing current postings, upserting
// them into the state store, enqueueing crawl messages, and marking
// postings that disappeared from a company's listing as expired.
package initializer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/adapters"
	"github.com/zduanx/jobtrawl/internal/errs"
	"github.com/zduanx/jobtrawl/internal/models"
	"github.com/zduanx/jobtrawl/internal/queue"
	"github.com/zduanx/jobtrawl/internal/state"
)

// CompanyConfig is the per-company input to a run: which companies to
// list, and the title filters to apply to each.
type CompanyConfig struct {
	Company string
	Filters models.TitleFilters
}

// Initializer runs the per-run fan-out over companies.
type Initializer struct {
	registry    *adapters.Registry
	runs        *state.RunStore
	jobs        *state.JobStore
	crawlQueue  *queue.Queue
	fanout      int
	logger      arbor.ILogger
}

// New builds an Initializer.
func New(registry *adapters.Registry, runs *state.RunStore, jobs *state.JobStore, crawlQueue *queue.Queue, fanout int, logger arbor.ILogger) *Initializer {
	if fanout < 1 {
		fanout = 1
	}
	return &Initializer{registry: registry, runs: runs, jobs: jobs, crawlQueue: crawlQueue, fanout: fanout, logger: logger}
}

// Run executes the initialization phase for one run: list, upsert,
// enqueue, expire-absent, then flip the run to "ingesting". It polls the
// run's status between major steps and exits cleanly (without error) if
// the run is observed to have gone terminal (e.g. aborted) in the
// meantime, since abort-during-initialization is an expected outcome, not
// a failure.
func (init *Initializer) Run(ctx context.Context, runID int64, userID string, companies []CompanyConfig) error {
	logger := init.logger.WithCorrelationId("init-" + uuid.NewString())

	if err := init.runs.MarkInitializing(ctx, runID); err != nil {
		return err
	}

	if aborted, err := init.isAborted(ctx, runID); err != nil {
		return err
	} else if aborted {
		return nil
	}

	run, err := init.runs.Get(ctx, runID)
	if err != nil {
		return err
	}

	succeeded := init.listAndEnqueueAll(ctx, runID, userID, run.Force, companies, logger)

	if aborted, err := init.isAborted(ctx, runID); err != nil {
		return err
	} else if aborted {
		return nil
	}

	for _, company := range succeeded {
		if _, err := init.jobs.MarkExpiredAbsent(ctx, userID, company, runID); err != nil {
			logger.Warn().Err(err).Str("company", company).Msg("failed to mark expired postings")
		}
	}

	total, err := init.jobs.CountPendingForRun(ctx, runID)
	if err != nil {
		return err
	}

	return init.runs.MarkIngesting(ctx, runID, total)
}

// listAndEnqueueAll fans out across companies with bounded concurrency,
// returning the companies that listed successfully (used for the expiry
// sweep — a company that errored contributes no expiry marks, per the
// conservative "no expiry on list failure" rule).
func (init *Initializer) listAndEnqueueAll(ctx context.Context, runID int64, userID string, force bool, companies []CompanyConfig, logger arbor.ILogger) []string {
	sem := make(chan struct{}, init.fanout)
	var mu sync.Mutex
	var succeeded []string
	var wg sync.WaitGroup

	for _, cc := range companies {
		cc := cc
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := init.listAndEnqueueOne(ctx, runID, userID, force, cc, logger); err != nil {
				logger.Warn().Err(err).Str("company", cc.Company).Msg("failed to list company, skipping from expiry sweep")
				return
			}
			mu.Lock()
			succeeded = append(succeeded, cc.Company)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return succeeded
}

func (init *Initializer) listAndEnqueueOne(ctx context.Context, runID int64, userID string, force bool, cc CompanyConfig, logger arbor.ILogger) error {
	adapter, ok := init.registry.Get(cc.Company)
	if !ok {
		return &errs.FormatError{Company: cc.Company, Err: errNoAdapter}
	}

	listed, err := adapter.ListJobs(ctx, cc.Filters)
	if err != nil {
		return err
	}

	for _, lj := range listed {
		jobID, err := init.jobs.Upsert(ctx, runID, userID, cc.Company, lj.ExternalID, lj.URL, lj.Title, lj.Location)
		if err != nil {
			logger.Warn().Err(err).Str("company", cc.Company).Str("external_id", lj.ExternalID).Msg("failed to upsert listed job")
			continue
		}

		prior, hasPrior, err := init.jobs.PriorSimHash(ctx, jobID)
		if err != nil {
			logger.Warn().Err(err).Int64("job_id", jobID).Msg("failed to load prior simhash")
		}

		msg := models.CrawlMessage{
			MessageID:    uuid.NewString(),
			RunID:        runID,
			JobID:        jobID,
			Company:      cc.Company,
			URL:          lj.URL,
			PriorSimHash: prior,
			HasPrior:     hasPrior,
			Force:        force,
			UserID:       userID,
		}
		if err := init.crawlQueue.Enqueue(ctx, msg); err != nil {
			logger.Warn().Err(err).Int64("job_id", jobID).Msg("failed to enqueue crawl message")
		}
	}
	return nil
}

func (init *Initializer) isAborted(ctx context.Context, runID int64) (bool, error) {
	run, err := init.runs.Get(ctx, runID)
	if err != nil {
		return false, err
	}
	return run.Status.Terminal(), nil
}

var errNoAdapter = noAdapterError{}

type noAdapterError struct{}

func (noAdapterError) Error() string { return "no adapter registered for company" }
