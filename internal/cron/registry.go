package cron

import (
	"context"
	"time"

	"github.com/angelmondragon/tillq/internal/worker"
)

// Job is one maintenance task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// IntervalJob is a job that carries its own cadence when scheduled on a device.
type IntervalJob interface {
	Job
	Interval() time.Duration
}

// Registry tracks registered jobs.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job to the registry.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Schedule hands every job to the background scheduler. Jobs without their
// own interval run every fallback.
func (r *Registry) Schedule(s worker.Scheduler, fallback time.Duration) error {
	for _, job := range r.jobs {
		interval := fallback
		if ij, ok := job.(IntervalJob); ok && ij.Interval() > 0 {
			interval = ij.Interval()
		}
		if err := s.RunPeriodically(job.Name(), interval, job.Run); err != nil {
			return err
		}
	}
	return nil
}
