package printqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillq/pkg/db/models"
	"github.com/angelmondragon/tillq/pkg/enums"
	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/metrics"
	"github.com/angelmondragon/tillq/pkg/redis"
)

const (
	claimScope          = "print"
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 25
	defaultPrintTimeout = 20 * time.Second
)

// Printer renders one job on local hardware.
type Printer interface {
	Print(ctx context.Context, printType enums.PrintType, payload json.RawMessage) error
}

type claimGuard interface {
	Claim(ctx context.Context, scope string, id uuid.UUID, owner string) (bool, error)
	Owner(ctx context.Context, scope string, id uuid.UUID) (string, error)
	Release(ctx context.Context, scope string, id uuid.UUID) error
}


type ConsumerParams struct {
	Service      *Service
	Printer      Printer
	Feed         redis.PubSub
	Guard        claimGuard
	Logger       *logger.Logger
	Metrics      *metrics.PrintMetrics
	DeviceID     string
	TenantID     string
	PollInterval time.Duration
	BatchSize    int
	PrintTimeout time.Duration
}

// Consumer is the print-server side of the queue: it claims pending jobs for
// one tenant and prints them on this device.
type Consumer struct {
	svc          *Service
	printer      Printer
	feed         redis.PubSub
	guard        claimGuard
	logg         *logger.Logger
	metrics      *metrics.PrintMetrics
	deviceID     string
	tenantID     string
	pollInterval time.Duration
	batchSize    int
	printTimeout time.Duration

	// jobs printed here whose printed status has not been written yet
	mu       sync.Mutex
	unmarked map[uuid.UUID]struct{}
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Service == nil {
		return nil, errors.New("print job service is required")
	}
	if params.Printer == nil {
		return nil, errors.New("printer is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DeviceID == "" || params.TenantID == "" {
		return nil, errors.New("device and tenant ids are required")
	}
	poll := params.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	timeout := params.PrintTimeout
	if timeout <= 0 {
		timeout = defaultPrintTimeout
	}
	return &Consumer{
		svc:          params.Service,
		printer:      params.Printer,
		feed:         params.Feed,
		guard:        params.Guard,
		logg:         params.Logger,
		metrics:      params.Metrics,
		deviceID:     params.DeviceID,
		tenantID:     params.TenantID,
		pollInterval: poll,
		batchSize:    batch,
		printTimeout: timeout,
		unmarked:     make(map[uuid.UUID]struct{}),
	}, nil
}

// Run processes pending jobs whenever the change feed fires and on every poll
// tick, until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	ctx = c.logg.WithFields(ctx, map[string]any{
		"tenant_id": c.tenantID,
		"device_id": c.deviceID,
	})

	var wake <-chan string
	if c.feed != nil {
		msgs, closeFn, err := c.feed.Subscribe(ctx, c.feed.PrintJobChannel(c.tenantID))
		if err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "print feed unavailable; polling only")
		} else {
			wake = msgs
			defer func() {
				if err := closeFn(); err != nil {
					c.logg.Error(ctx, "close print feed", err)
				}
			}()
		}
	}

	c.logg.Info(ctx, "print consumer started")
	c.drainOnce(ctx)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logg.Info(ctx, "print consumer context canceled")
			return ctx.Err()
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			c.drainOnce(ctx)
		case <-ticker.C:
			c.drainOnce(ctx)
		}
	}
}

func (c *Consumer) drainOnce(ctx context.Context) {
	if _, err := c.ProcessPending(ctx); err != nil && ctx.Err() == nil {
		c.logg.Error(ctx, "print queue poll failed", err)
	}
}

// ProcessPending prints one batch of pending jobs and returns how many this
// device finalized.
func (c *Consumer) ProcessPending(ctx context.Context) (int, error) {
	jobs, err := c.svc.PollPending(ctx, c.tenantID, c.batchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) < c.batchSize {
		c.prune(jobs)
	}
	handled := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}
		done, err := c.handle(ctx, job)
		if err != nil {
			return handled, err
		}
		if done {
			handled++
		}
	}
	return handled, nil
}

func (c *Consumer) handle(ctx context.Context, job models.PrintJob) (bool, error) {
	jobCtx := c.logg.WithFields(c.logg.WithPrintJobID(ctx, job.ID.String()), map[string]any{
		"print_type": job.PrintType,
	})

	// A job this device already printed is only finalized, never printed again.
	if c.awaitingMark(job.ID) {
		c.logg.Info(jobCtx, "retrying print job status write")
		return c.finish(jobCtx, job, nil)
	}

	if c.guard != nil {
		proceed, err := c.claim(jobCtx, job)
		if err != nil {
			// the conditional update below still keeps the status single-writer
			c.logg.Warn(c.logg.WithField(jobCtx, "error", err.Error()), "print claim guard unavailable")
		} else if !proceed {
			c.metrics.IncJob("skipped")
			c.logg.Debug(jobCtx, "print job claimed by another device")
			return false, nil
		}
	}

	printCtx, cancel := context.WithTimeout(jobCtx, c.printTimeout)
	printErr := c.printer.Print(printCtx, job.PrintType, json.RawMessage(job.Payload))
	cancel()

	return c.finish(jobCtx, job, printErr)
}

// claim reports whether this device may print job. A marker already held by
// this device (a previous process that stopped mid-job) counts as ours.
func (c *Consumer) claim(ctx context.Context, job models.PrintJob) (bool, error) {
	claimed, err := c.guard.Claim(ctx, claimScope, job.ID, c.deviceID)
	if err != nil || claimed {
		return true, err
	}
	owner, err := c.guard.Owner(ctx, claimScope, job.ID)
	if err != nil {
		return false, nil
	}
	return owner == c.deviceID, nil
}

// finish writes the outcome of a print attempt. When the write fails after a
// successful print the outcome is remembered and the claim kept, so the next
// pass finalizes without printing twice. When it fails after a printer error
// the claim is released so the ticket can be retried.
func (c *Consumer) finish(ctx context.Context, job models.PrintJob, printErr error) (bool, error) {
	if printErr != nil {
		_, changed, err := c.svc.MarkFailed(ctx, c.tenantID, job.ID, printErr.Error())
		if err != nil {
			c.release(ctx, job.ID)
			return false, fmt.Errorf("mark print job %s failed: %w", job.ID, err)
		}
		c.metrics.IncJob("failed")
		c.logg.Warn(c.logg.WithField(ctx, "error", printErr.Error()), "print job failed")
		return changed, nil
	}

	_, changed, err := c.svc.MarkPrinted(ctx, c.tenantID, job.ID, c.deviceID)
	if err != nil {
		c.remember(job.ID)
		return false, fmt.Errorf("mark print job %s printed: %w", job.ID, err)
	}
	c.forget(job.ID)
	if !changed {
		c.metrics.IncJob("skipped")
		return false, nil
	}
	c.metrics.IncJob("printed")
	c.logg.Info(ctx, "print job printed")
	return true, nil
}

func (c *Consumer) release(ctx context.Context, id uuid.UUID) {
	if c.guard == nil {
		return
	}
	if err := c.guard.Release(ctx, claimScope, id); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "release print claim")
	}
}

func (c *Consumer) awaitingMark(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.unmarked[id]
	return ok
}

func (c *Consumer) remember(id uuid.UUID) {
	c.mu.Lock()
	c.unmarked[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Consumer) forget(id uuid.UUID) {
	c.mu.Lock()
	delete(c.unmarked, id)
	c.mu.Unlock()
}

// prune forgets unmarked jobs that are no longer pending. It only
// runs when the poll returned the whole backlog.
func (c *Consumer) prune(jobs []models.PrintJob) {
	live := make(map[uuid.UUID]struct{}, len(jobs))
	for _, job := range jobs {
		live[job.ID] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.unmarked {
		if _, ok := live[id]; !ok {
			delete(c.unmarked, id)
		}
	}
}
