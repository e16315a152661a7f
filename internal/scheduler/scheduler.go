// Package scheduler triggers a recurring ingestion run on a cron schedule,
// for deployments that want periodic ingestion without an external caller.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Scheduler runs a single cron-triggered callback.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	trigger  func()
	logger   arbor.ILogger
}

// New builds a Scheduler for the given cron expression. The callback
// should be fast and non-blocking (e.g. it should itself launch a
// goroutine), since cron invokes it synchronously on its own goroutine.
func New(schedule string, trigger func(), logger arbor.ILogger) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{cron: c, schedule: schedule, trigger: trigger, logger: logger}

	if _, err := c.AddFunc(schedule, func() {
		s.logger.Info().Str("schedule", schedule).Msg("scheduled run triggered")
		s.trigger()
	}); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the cron scheduler's own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight callback to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
