// Package app wires every component of the ingestion pipeline together:
// the state store, content store, queues, rate limiter, adapter registry,
// initializer, finalizer, worker pools, and the HTTP API that fronts them.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/adapters"
	"github.com/zduanx/jobtrawl/internal/api"
	"github.com/zduanx/jobtrawl/internal/common"
	"github.com/zduanx/jobtrawl/internal/companies"
	"github.com/zduanx/jobtrawl/internal/content"
	"github.com/zduanx/jobtrawl/internal/finalizer"
	"github.com/zduanx/jobtrawl/internal/initializer"
	"github.com/zduanx/jobtrawl/internal/queue"
	"github.com/zduanx/jobtrawl/internal/ratelimit"
	"github.com/zduanx/jobtrawl/internal/runlog"
	"github.com/zduanx/jobtrawl/internal/runner"
	"github.com/zduanx/jobtrawl/internal/scheduler"
	"github.com/zduanx/jobtrawl/internal/state"
	"github.com/zduanx/jobtrawl/internal/worker/crawler"
	"github.com/zduanx/jobtrawl/internal/worker/extractor"
)

// App holds every long-lived component the process needs, assembled once
// at startup by New and torn down once by Shutdown.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB       *state.DB
	Runs     *state.RunStore
	Jobs     *state.JobStore
	Content  *content.Store
	Registry *adapters.Registry

	CrawlQueue   *queue.Queue
	ExtractQueue *queue.Queue

	Finalizer   *finalizer.Finalizer
	Initializer *initializer.Initializer
	Runner      *runner.Runner

	CrawlPool   *queue.Pool
	ExtractPool *queue.Pool

	Buffers   *runlog.Buffers
	Router    http.Handler
	Scheduler *scheduler.Scheduler

	cancel context.CancelFunc
}

// New builds a fully-wired App from config and a pre-populated adapter
// registry (the set of companies this deployment knows how to ingest).
func New(cfg *common.Config, registry *adapters.Registry, settings companies.SettingsProvider, logger arbor.ILogger) (*App, error) {
	db, err := state.Open(cfg.State.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	runs := state.NewRunStore(db)
	jobs := state.NewJobStore(db)

	contentStore, err := content.New(cfg.Content.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open content store: %w", err)
	}

	visibilityTimeout, err := time.ParseDuration(cfg.Queue.VisibilityTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid queue visibility_timeout: %w", err)
	}
	pollInterval, err := time.ParseDuration(cfg.Queue.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid queue poll_interval: %w", err)
	}

	crawlQueue, err := queue.New(db.Conn().DB, queue.CrawlQueueName, cfg.Queue.MaxReceive, visibilityTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open crawl queue: %w", err)
	}
	extractQueue, err := queue.New(db.Conn().DB, queue.ExtractQueueName, cfg.Queue.MaxReceive, visibilityTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open extract queue: %w", err)
	}

	limiters := ratelimit.NewCompanyLimiters(cfg.Crawler.DefaultRatePerSec, cfg.Crawler.DefaultBurst)

	f := finalizer.New(runs, jobs, logger)
	init := initializer.New(registry, runs, jobs, crawlQueue, cfg.Queue.InitializerFanout, logger)
	run := runner.New(init, logger)

	crawlerWorker := crawler.New(registry, runs, jobs, contentStore, extractQueue, limiters, f, cfg.SimHash.HammingThreshold, logger)
	extractorWorker := extractor.New(registry, runs, jobs, contentStore, f, logger)

	crawlPool := queue.NewPool(crawlQueue, crawlerWorker.Handle, cfg.Queue.CrawlConcurrency, pollInterval, logger)
	extractPool := queue.NewPool(extractQueue, extractorWorker.Handle, cfg.Queue.ExtractConcurrency, pollInterval, logger)

	buffers := runlog.NewBuffers(cfg.Progress.LogBufferLines)

	progressPoll, err := time.ParseDuration(cfg.Progress.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid progress poll_interval: %w", err)
	}
	progressPing, err := time.ParseDuration(cfg.Progress.PingInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid progress ping_interval: %w", err)
	}

	runHandler := api.NewRunHandler(runs, jobs, settings, run, buffers, logger)
	progressHandler := api.NewProgressHandler(runs, jobs, progressPoll, progressPing, logger)
	logsHandler := api.NewLogsHandler(buffers, progressPing, logger)
	router := api.NewRouter(runHandler, progressHandler, logsHandler, api.StaticAuthenticator{}, logger)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(cfg.Scheduler.Schedule, func() {
			logger.Info().Msg("scheduled run trigger fired (no-op: no default user configured)")
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build scheduler: %w", err)
		}
	}

	return &App{
		Config: cfg, Logger: logger,
		DB: db, Runs: runs, Jobs: jobs, Content: contentStore, Registry: registry,
		CrawlQueue: crawlQueue, ExtractQueue: extractQueue,
		Finalizer: f, Initializer: init, Runner: run,
		CrawlPool: crawlPool, ExtractPool: extractPool,
		Buffers: buffers, Router: router, Scheduler: sched,
	}, nil
}

// Start launches all background goroutines: the worker pools, the content
// store's retention sweep, and the scheduler (if enabled).
func (a *App) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.CrawlPool.Start(ctx)
	a.ExtractPool.Start(ctx)

	sweepInterval, err := time.ParseDuration(a.Config.Content.SweepInterval)
	if err == nil {
		retention, rerr := time.ParseDuration(a.Config.Content.RetentionPeriod)
		if rerr == nil {
			go a.Content.RunSweepLoop(ctx, sweepInterval, retention)
		}
	}

	if a.Scheduler != nil {
		a.Scheduler.Start()
	}
}

// Shutdown stops all background goroutines and closes the state store.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	return a.DB.Close()
}
