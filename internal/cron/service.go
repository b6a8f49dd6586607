package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

// ServiceParams configure the maintenance service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Interval is the tick. It shrinks to the shortest IntervalJob cadence.
	Interval time.Duration
}

// Service runs registered jobs while holding Lock, so only one process per
// deployment performs shared maintenance. Plain jobs run every cycle; an
// IntervalJob runs once its own cadence has elapsed since its last run.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewService builds a maintenance service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	for _, job := range registry.Jobs() {
		if ij, ok := job.(IntervalJob); ok && ij.Interval() > 0 && ij.Interval() < interval {
			interval = ij.Interval()
		}
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      time.Now,
		lastRun:  map[string]time.Time{},
	}, nil
}

// Interval is the effective tick.
func (s *Service) Interval() time.Duration { return s.interval }

// Run starts the loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "maintenance cycle failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "maintenance service stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logg.Error(ctx, "maintenance cycle failed", err)
			}
		}
	}
}

// RunOnce runs every due job in a single locked cycle.
func (s *Service) RunOnce(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "maintenance lock held elsewhere; skipping cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release maintenance lock", relErr)
		}
	}()

	ran := 0
	for _, job := range s.registry.Jobs() {
		if !s.due(job) {
			continue
		}
		s.runJob(ctx, job)
		ran++
	}
	s.logg.Info(s.logg.WithField(ctx, "jobs_run", ran), "maintenance cycle complete")
	return nil
}

func (s *Service) due(job Job) bool {
	ij, ok := job.(IntervalJob)
	if !ok || ij.Interval() <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.lastRun[job.Name()]
	return !seen || s.now().Sub(last) >= ij.Interval()
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "maintenance.job"})
	start := s.now()
	err := job.Run(jobCtx)
	duration := s.now().Sub(start)

	s.mu.Lock()
	s.lastRun[job.Name()] = start
	s.mu.Unlock()

	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
}
