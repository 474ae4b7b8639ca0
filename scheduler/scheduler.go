// Package scheduler runs periodic source ingestion on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled run. It receives a context bounded by the run timeout.
type Job func(ctx context.Context) error

// Scheduler runs a single job on a cron schedule. Overlapping runs are
// skipped: a tick that fires while the previous run is still going is
// dropped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

// New creates a Scheduler. timeout bounds each run; zero means no bound.
func New(logger *slog.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
		logger:  logger,
		timeout: timeout,
	}
}

// Schedule registers job on a standard five-field cron expression,
// replacing any previously scheduled job.
func (s *Scheduler) Schedule(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}

	id, err := s.cron.AddFunc(spec, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("failed to schedule %q: %w", spec, err)
	}
	s.entryID = id
	return nil
}

// RunNow runs the job immediately in the caller's goroutine.
func (s *Scheduler) RunNow(job Job) {
	s.run(job)
}

func (s *Scheduler) run(job Job) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled run finished", "duration", time.Since(start))
}

// NextRun returns when the job fires next, or the zero time when nothing is
// scheduled or the scheduler is stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
