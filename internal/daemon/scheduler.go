package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// RunFunc performs one purge run.
type RunFunc func(ctx context.Context) error

// Scheduler runs purges on a cron schedule. A tick that fires while the
// previous purge is still running is skipped.
type Scheduler struct {
	spec   string
	run    RunFunc
	logger *log.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New creates a scheduler for a standard five field cron expression.
func New(spec string, logger *log.Logger, run RunFunc) *Scheduler {
	return &Scheduler{
		spec:   spec,
		run:    run,
		logger: logger,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(logger)),
			cron.SkipIfStillRunning(cron.PrintfLogger(logger)),
		)),
	}
}

// Start validates the expression and begins scheduling. Cancelling ctx
// stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if _, err := cron.ParseStandard(s.spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.spec, err)
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule purge: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("purge scheduler started", "cron", s.spec, "next", s.nextLocked())

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()
	if err := s.run(ctx); err != nil {
		s.logger.Warn("scheduled purge failed", "error", err, "elapsed", time.Since(started))
		return
	}
	s.logger.Debug("scheduled purge finished", "elapsed", time.Since(started))
}

// Stop halts scheduling and waits for a running purge to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("purge scheduler stopped")
}

// Running reports whether the scheduler is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled purge, or the zero time when idle.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLocked()
}

func (s *Scheduler) nextLocked() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
