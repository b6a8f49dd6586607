package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tillq/internal/syncer"
	"github.com/angelmondragon/tillq/pkg/logger"
)

const periodicDrainInterval = 5 * time.Minute

type drainer interface {
	Drain(ctx context.Context) (syncer.Result, error)
}

type pendingCounter interface {
	PendingCount(ctx context.Context) (int64, error)
}

type onlineReporter interface {
	IsOnline() bool
}

type PeriodicDrainJobParams struct {
	Logger   *logger.Logger
	Engine   drainer
	Queue    pendingCounter
	Online   onlineReporter
	Interval time.Duration
}

// NewPeriodicDrainJob retries the queue on a timer so operations left behind
// by failed drains are replayed without waiting for a connectivity change.
func NewPeriodicDrainJob(params PeriodicDrainJobParams) (IntervalJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("sync engine required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("queue required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = periodicDrainInterval
	}
	job := &periodicDrainJob{
		logg:     params.Logger,
		engine:   params.Engine,
		queue:    params.Queue,
		interval: interval,
	}
	if params.Online != nil {
		job.online = params.Online
	}
	return job, nil
}

type periodicDrainJob struct {
	logg     *logger.Logger
	engine   drainer
	queue    pendingCounter
	online   onlineReporter
	interval time.Duration
}

func (j *periodicDrainJob) Name() string { return "periodic-drain" }

func (j *periodicDrainJob) Interval() time.Duration { return j.interval }

func (j *periodicDrainJob) Run(ctx context.Context) error {
	if j.online != nil && !j.online.IsOnline() {
		return nil
	}
	pending, err := j.queue.PendingCount(ctx)
	if err != nil {
		return fmt.Errorf("count pending operations: %w", err)
	}
	if pending == 0 {
		return nil
	}
	res, err := j.engine.Drain(ctx)
	if err != nil {
		return fmt.Errorf("periodic drain: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
		"deferred":  res.Deferred,
	}), "periodic drain complete")
	if res.Failed > 0 {
		return fmt.Errorf("periodic drain left %d operations queued: %w", res.Failed, res.Err())
	}
	return nil
}
