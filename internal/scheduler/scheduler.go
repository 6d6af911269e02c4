// Package scheduler runs a job now and then at a fixed interval. Overlapping
// executions are skipped and a failed execution is retried after a backoff
// instead of waiting for the next tick.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gabapcia/mintwatch/internal/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Job is the scheduled work.
type Job func(ctx context.Context) error

// cronLogger routes cron's own logging to the context logger.
type cronLogger struct {
	ctx context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug(l.ctx, "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error(l.ctx, "cron: "+msg, append(keysAndValues, "error", err)...)
}

// Scheduler drives a Job.
type Scheduler struct {
	job          Job
	interval     time.Duration
	errorBackoff time.Duration

	mu      sync.Mutex
	retry   *time.Timer
	stopped bool
	running sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithErrorBackoff sets the delay before a failed execution is retried.
// Zero disables retries; the next tick still runs.
func WithErrorBackoff(d time.Duration) Option {
	return func(s *Scheduler) {
		s.errorBackoff = d
	}
}

// New returns a Scheduler running job every interval, with a 5 minute error
// backoff. cron resolves intervals to whole seconds, one second at least.
func New(job Job, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		job:          job,
		interval:     interval,
		errorBackoff: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is done. The first execution starts immediately. On
// return no execution is in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	l := cronLogger{ctx: ctx}
	c := cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)

	var trigger func()
	id, err := c.AddJob(fmt.Sprintf("@every %s", s.interval), cron.FuncJob(func() {
		if !s.enter() {
			return
		}
		defer s.running.Done()

		s.execute(ctx, trigger)
	}))
	if err != nil {
		return fmt.Errorf("schedule every %s: %w", s.interval, err)
	}
	trigger = c.Entry(id).WrappedJob.Run

	logger.Info(ctx, "scheduler started", "interval", s.interval.String())
	c.Start()
	go trigger()

	<-ctx.Done()

	s.mu.Lock()
	s.stopped = true
	if s.retry != nil {
		s.retry.Stop()
	}
	s.mu.Unlock()

	<-c.Stop().Done()
	s.running.Wait()
	logger.Info(ctx, "scheduler stopped")
	return nil
}

// enter registers an execution unless the scheduler is stopping. Executions
// also start outside cron (the first one and backoff retries), so cron's own
// shutdown wait does not cover them.
func (s *Scheduler) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.running.Add(1)
	return true
}

func (s *Scheduler) execute(ctx context.Context, trigger func()) {
	if ctx.Err() != nil {
		return
	}

	err := s.job(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}

	if s.errorBackoff <= 0 {
		logger.Error(ctx, "scheduled job failed", "error", err)
		return
	}

	logger.Error(ctx, "scheduled job failed, retrying after backoff", "error", err, "backoff", s.errorBackoff.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retry != nil {
		s.retry.Stop()
	}
	s.retry = time.AfterFunc(s.errorBackoff, trigger)
}
