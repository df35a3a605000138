package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
	"github.com/custodia-labs/quill/internal/core/ports/driving"
	"github.com/custodia-labs/quill/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler runs reconcile on a cron schedule.
// It is a pure core service with no external control API.
type Scheduler struct {
	schedule   string
	runs       driven.ReconcileLog
	reconciler driving.Reconciler

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. An empty schedule uses domain.DefaultReconcileSchedule.
// runs may be nil, in which case no history is kept.
func NewScheduler(schedule string, runs driven.ReconcileLog, reconciler driving.Reconciler) *Scheduler {
	if schedule == "" {
		schedule = domain.DefaultReconcileSchedule
	}
	return &Scheduler{
		schedule:   schedule,
		runs:       runs,
		reconciler: reconciler,
	}
}

// ValidateSchedule reports whether spec is a cron expression or descriptor cron accepts.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Start runs reconcile once and then on schedule. It blocks until Stop is
// called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.runOnce(ctx) }); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("invalid schedule %q: %w", s.schedule, err)
	}

	s.runOnce(ctx)
	c.Start()
	logger.Info("Scheduler: reconcile scheduled %s", s.schedule)

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-stopCh:
	}

	<-c.Stop().Done()
	s.wg.Wait()
	return err
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)
	return nil
}

// History returns up to limit recorded runs, newest first.
func (s *Scheduler) History(ctx context.Context, limit int) ([]domain.ReconcileRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.Recent(ctx, limit)
}

// runOnce reconciles and records the outcome.
func (s *Scheduler) runOnce(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	if s.reconciler == nil {
		return
	}

	run := &domain.ReconcileRun{StartedAt: time.Now()}
	report, err := s.reconciler.Reconcile(ctx)
	run.EndedAt = time.Now()
	if err != nil {
		run.Error = err.Error()
		logger.Warn("Scheduler: reconcile failed: %v", err)
	} else {
		run.Report = *report
	}

	if s.runs == nil {
		return
	}
	if err := s.runs.Append(ctx, run); err != nil {
		logger.Warn("Scheduler: failed to record reconcile run: %v", err)
	}
	if err := s.runs.Trim(ctx, domain.ReconcileHistoryLimit); err != nil {
		logger.Warn("Scheduler: failed to trim reconcile history: %v", err)
	}
}
