// Package scheduler periodically refetches the event list so that changes
// made by other clients show up without a user action.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	appLog "evsched/internal/log"
)

// Refresher is implemented by *controller.Controller.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs Refresh on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	target  Refresher
	timeout time.Duration
	runs    atomic.Int64
}

// New parses schedule (standard 5-field cron or a descriptor such as
// "@every 5m") and prepares a scheduler. timeout bounds each refresh.
func New(schedule string, loc *time.Location, target Refresher, timeout time.Duration) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		target:  target,
		timeout: timeout,
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("parse resync schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is canceled. A refresh in
// progress is waited for before returning.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	appLog.Info("resync scheduler started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("resync scheduler stopped", "runs", s.runs.Load())
}

// Runs reports how many refreshes have been attempted.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

func (s *Scheduler) tick() {
	s.runs.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.target.Refresh(ctx); err != nil {
		appLog.Error("scheduled resync failed", err)
		return
	}
	appLog.Debug("scheduled resync completed", "elapsed", time.Since(start).String())
}
