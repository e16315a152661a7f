package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/common"
	"github.com/zduanx/jobtrawl/internal/errs"
)

// Handler processes one decoded message. attempt is this delivery's 1-based
// receive count; maxReceive is the queue's configured redelivery ceiling.
// A returned error that is errs.IsRetryable and attempt < maxReceive leaves
// the message in the queue for goqite to redeliver once its visibility
// timeout elapses; any other error (or success) deletes it.
type Handler func(ctx context.Context, raw []byte, attempt, maxReceive int) error

// Pool runs a fixed number of goroutines polling a single queue.
type Pool struct {
	queue        *Queue
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger

	cancel context.CancelFunc
}

// NewPool builds a worker pool bound to one queue. Call Start to begin
// polling and Stop to drain it.
func NewPool(q *Queue, handler Handler, concurrency int, pollInterval time.Duration, logger arbor.ILogger) *Pool {
	return &Pool{
		queue:        q,
		handler:      handler,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Start spawns the configured number of poller goroutines, each governed
// by ctx. It returns immediately; callers should arrange their own
// lifetime management (e.g. via a parent context cancel) rather than
// calling Stop, which is kept only for symmetry with the teacher's pool.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.concurrency; i++ {
		workerID := i
		common.SafeGoWithContext(ctx, p.logger, fmt.Sprintf("queue-worker-%d", workerID), func() {
			p.worker(ctx, workerID)
		})
	}
}

// Stop cancels all poller goroutines. It does not wait for in-flight
// handlers to finish; callers needing a graceful drain should track that
// separately (e.g. a sync.WaitGroup around the handler itself).
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	// Stagger start so N workers don't all hit the DB in lockstep.
	time.Sleep(time.Duration(workerID) * 50 * time.Millisecond)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processOne(ctx, workerID)
		}
	}
}

func (p *Pool) processOne(ctx context.Context, workerID int) {
	var raw json.RawMessage
	deleteFn, attempt, err := p.queue.Receive(ctx, &raw)
	if err != nil {
		if err != ErrNoMessage {
			p.logger.Warn().Err(err).Int("worker", workerID).Msg("failed to receive message")
		}
		return
	}

	maxReceive := p.queue.MaxReceive()
	handleErr := p.handler(ctx, raw, attempt, maxReceive)
	if handleErr != nil {
		if errs.IsRetryable(handleErr) && attempt < maxReceive {
			p.logger.Warn().Err(handleErr).Int("worker", workerID).Int("attempt", attempt).
				Msg("handler failed with retryable error, leaving for redelivery")
			return
		}
		p.logger.Warn().Err(handleErr).Int("worker", workerID).Int("attempt", attempt).
			Msg("handler failed, message deleted")
	}

	if err := deleteFn(); err != nil {
		p.logger.Warn().Err(err).Int("worker", workerID).Msg("failed to delete processed message")
	}
}
