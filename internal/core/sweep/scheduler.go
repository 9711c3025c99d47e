// Package sweep periodically drops metrics of rules that have not been
// evaluated recently, bounding the metrics store to rules still in use.
package sweep

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// Sweeper removes metrics entries idle for longer than maxAge and returns
// how many were removed. *rules.Engine implements it.
type Sweeper interface {
	ClearOldMetrics(maxAge time.Duration) int
}

// Scheduler runs a Sweeper on a cron schedule.
type Scheduler struct {
	target   Sweeper
	maxAge   time.Duration
	schedule string
	logger   *log.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a scheduler. schedule accepts standard five-field
// cron expressions and descriptors such as "@every 1h".
func NewScheduler(target Sweeper, maxAge time.Duration, schedule string, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Scheduler{
		target:   target,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   logger.WithPrefix("sweep"),
		cron:     cron.New(),
	}
}

// Start validates the schedule and begins sweeping in the background.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweep scheduler already running")
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("metrics sweeper started", "schedule", s.schedule, "max_age", s.maxAge)
	return nil
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Sweep clears stale metrics once and returns the number removed.
func (s *Scheduler) Sweep() int {
	removed := s.target.ClearOldMetrics(s.maxAge)
	s.logger.Info("swept rule metrics", "removed", removed, "max_age", s.maxAge)
	return removed
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("metrics sweeper stopped")
}

// Running reports whether the schedule is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
