// Package scheduler runs database maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of scheduled work. Errors are logged; they do not stop the
// schedule.
type Job func(ctx context.Context) error

// Scheduler manages named cron jobs sharing one context.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	log  *slog.Logger

	mu   sync.Mutex
	jobs map[string]Job
}

// New creates a Scheduler evaluating specs in loc. A nil loc means
// time.Local. Overlapping runs of the same job are skipped.
func New(ctx context.Context, loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With("component", "scheduler")
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		ctx:  ctx,
		log:  logger,
		jobs: make(map[string]Job),
	}
}

// Add registers job under name with a standard five-field cron spec or a
// descriptor such as "@daily". An empty spec registers the job for RunNow
// only.
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
			return fmt.Errorf("register %s job: %w", name, err)
		}
		s.log.Info("job scheduled", "job", name, "spec", spec)
	}
	s.jobs[name] = job
	return nil
}

// RunNow executes the named job synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(name, job)
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop halts the schedule and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(name string, job Job) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	s.log.Info("job started", "job", name)
	if err := job(s.ctx); err != nil {
		s.log.Error("job failed", "job", name, "error", err, "elapsed", time.Since(start))
		return err
	}
	s.log.Info("job finished", "job", name, "elapsed", time.Since(start))
	return nil
}
