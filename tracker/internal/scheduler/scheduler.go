// Package scheduler provides the periodic check trigger.
//
// Unlike a plain ticker the interval can be re-armed while running: a
// settings update pushes the new interval and the pending timer is reset
// without restarting the loop.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Task is the work fired on every interval.
type Task func(ctx context.Context)

// Scheduler fires a task on a re-armable interval.
type Scheduler struct {
	interval time.Duration
	task     Task
	reset    chan time.Duration
	logger   *slog.Logger
}

// New creates a Scheduler. interval must be positive.
func New(interval time.Duration, task Task, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		task:     task,
		reset:    make(chan time.Duration, 1),
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, firing the task every interval.
// The first firing happens one full interval after start.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	s.logger.Info("scheduler: started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return
		case d := <-s.reset:
			s.interval = d
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d)
			s.logger.Info("scheduler: rescheduled", "interval", d)
		case <-timer.C:
			s.task(ctx)
			timer.Reset(s.interval)
		}
	}
}

// Reschedule re-arms the running loop with a new interval. Non-blocking;
// when called repeatedly before the loop drains, the last value wins.
func (s *Scheduler) Reschedule(d time.Duration) {
	if d <= 0 {
		return
	}
	for {
		select {
		case s.reset <- d:
			return
		default:
			select {
			case <-s.reset:
			default:
			}
		}
	}
}
