package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tillq/pkg/logger"
)

const printJobRetentionDays = 30

type printJobPurger interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PrintJobRetentionJobParams struct {
	Logger    *logger.Logger
	Jobs      printJobPurger
	Retention int
}

// NewPrintJobRetentionJob deletes printed and failed print jobs older than
// the retention window. Pending jobs are never touched.
func NewPrintJobRetentionJob(params PrintJobRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Jobs == nil {
		return nil, fmt.Errorf("print job store required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = printJobRetentionDays
	}
	return &printJobRetentionJob{
		logg:      params.Logger,
		jobs:      params.Jobs,
		retention: retention,
		now:       time.Now,
	}, nil
}

type printJobRetentionJob struct {
	logg      *logger.Logger
	jobs      printJobPurger
	retention int
	now       func() time.Time
}

func (j *printJobRetentionJob) Name() string { return "print-job-retention" }

func (j *printJobRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.jobs.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("print job retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	}), "print job retention cleanup complete")
	return nil
}
