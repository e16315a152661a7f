// Package queue wraps maragu.dev/goqite into the two named queues the
// pipeline needs (crawl, extract), giving at-least-once delivery with
// visibility-timeout-based redelivery. Dead-lettering past MaxReceive is
// goqite's own job, but only if callers leave retryable failures in the
// queue instead of unconditionally deleting them — see Pool.processOne.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"maragu.dev/goqite"
)

// Names of the two queues sharing the state store's SQLite file.
const (
	CrawlQueueName   = "jobtrawl_crawl"
	ExtractQueueName = "jobtrawl_extract"
)

// ErrNoMessage is returned by Receive when the queue is currently empty.
var ErrNoMessage = errors.New("no messages in queue")

// Queue is a thin, business-logic-free wrapper around a goqite queue.
type Queue struct {
	q          *goqite.Queue
	maxReceive int
}

// New opens (creating if needed) a named goqite queue over db.
func New(db *sql.DB, name string, maxReceive int, visibilityTimeout time.Duration) (*Queue, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := goqite.Setup(ctx, db); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return nil, err
		}
	}

	q := goqite.New(goqite.NewOpts{
		DB:                 db,
		Name:               name,
		MaxReceive:         maxReceive,
		Timeout:            visibilityTimeout,
	})

	return &Queue{q: q, maxReceive: maxReceive}, nil
}

// MaxReceive returns the configured redelivery ceiling for this queue.
func (q *Queue) MaxReceive() int { return q.maxReceive }

// Enqueue JSON-serializes v and sends it as a new message.
func (q *Queue) Enqueue(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return q.q.Send(ctx, goqite.Message{Body: data})
}

// Receive pulls the next available message, decoding its JSON body into
// out, and reports how many times this message has been delivered
// (including this delivery). The returned delete function must be called
// once the message has been durably processed (success or permanent
// failure) — leaving a retryable failure undeleted lets goqite's own
// visibility timeout redeliver it, up to MaxReceive.
func (q *Queue) Receive(ctx context.Context, out any) (deleteFn func() error, attempt int, err error) {
	msg, err := q.q.Receive(ctx)
	if err != nil {
		return nil, 0, err
	}
	if msg == nil {
		return nil, 0, ErrNoMessage
	}

	if err := json.Unmarshal(msg.Body, out); err != nil {
		return nil, 0, err
	}

	deleteFn = func() error {
		deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return q.q.Delete(deleteCtx, msg.ID)
	}
	return deleteFn, msg.Received, nil
}

// Extend pushes out a message's visibility timeout, for handlers that need
// more time than the configured default before the message would be
// considered abandoned and redelivered.
func (q *Queue) Extend(ctx context.Context, id goqite.ID, d time.Duration) error {
	return q.q.Extend(ctx, id, d)
}
