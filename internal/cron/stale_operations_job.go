package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/outbox"
)

const staleCheckInterval = 24 * time.Hour

type staleChecker interface {
	CheckStale(ctx context.Context) (outbox.StaleReport, error)
}

type StaleOperationsJobParams struct {
	Logger   *logger.Logger
	Checker  staleChecker
	Interval time.Duration
}

// NewStaleOperationsJob builds the periodic reminder for operations that have
// waited past the staleness threshold.
func NewStaleOperationsJob(params StaleOperationsJobParams) (IntervalJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Checker == nil {
		return nil, fmt.Errorf("stale checker required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = staleCheckInterval
	}
	return &staleOperationsJob{logg: params.Logger, checker: params.Checker, interval: interval}, nil
}

type staleOperationsJob struct {
	logg     *logger.Logger
	checker  staleChecker
	interval time.Duration
}

func (j *staleOperationsJob) Name() string { return "stale-operations" }

func (j *staleOperationsJob) Interval() time.Duration { return j.interval }

func (j *staleOperationsJob) Run(ctx context.Context) error {
	report, err := j.checker.CheckStale(ctx)
	if err != nil {
		return fmt.Errorf("check stale operations: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"stale_count": report.Count,
		"threshold":   report.Threshold.String(),
	}), "stale operation check complete")
	return nil
}
