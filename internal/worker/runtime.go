package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/metrics"
)

const defaultQueueLimit = 64

type periodicJob struct {
	name     string
	interval time.Duration
	fn       JobFunc
}

type RuntimeParams struct {
	Logger     *logger.Logger
	Metrics    *metrics.CronJobMetrics
	QueueLimit int
}

// Runtime is the in-process Scheduler used by the device daemon.
type Runtime struct {
	logg       *logger.Logger
	metrics    *metrics.CronJobMetrics
	queueLimit int

	mu       sync.Mutex
	ctx      context.Context
	wg       sync.WaitGroup
	jobs     []periodicJob
	handlers []ConnectivityHandler
	sink     Sink
	queued   []Message
}

var _ Scheduler = (*Runtime)(nil)

func NewRuntime(params RuntimeParams) (*Runtime, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	limit := params.QueueLimit
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	return &Runtime{
		logg:       params.Logger,
		metrics:    params.Metrics,
		queueLimit: limit,
	}, nil
}

// RunPeriodically registers job; it starts right away if the runtime is running.
func (r *Runtime) RunPeriodically(name string, interval time.Duration, job JobFunc) error {
	if name == "" {
		return errors.New("job name is required")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if job == nil {
		return fmt.Errorf("job %s: func is required", name)
	}
	pj := periodicJob{name: name, interval: interval, fn: job}

	r.mu.Lock()
	r.jobs = append(r.jobs, pj)
	ctx := r.ctx
	r.mu.Unlock()

	if ctx != nil {
		r.launch(ctx, pj)
	}
	return nil
}

// Start launches every registered job and blocks until ctx is canceled.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.ctx != nil {
		r.mu.Unlock()
		return errors.New("runtime already started")
	}
	r.ctx = ctx
	jobs := append([]periodicJob(nil), r.jobs...)
	r.mu.Unlock()

	for _, job := range jobs {
		r.launch(ctx, job)
	}
	<-ctx.Done()
	r.wg.Wait()
	return ctx.Err()
}

func (r *Runtime) launch(ctx context.Context, job periodicJob) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(job.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunNow(ctx, job.name, job.fn)
			}
		}
	}()
}

// RunNow executes fn once with the same logging and metrics as a scheduled run.
func (r *Runtime) RunNow(ctx context.Context, name string, fn JobFunc) {
	jobCtx := r.logg.WithField(ctx, "job", name)
	start := time.Now()
	err := fn(jobCtx)
	duration := time.Since(start)
	r.metrics.ObserveDuration(name, duration)
	if err != nil {
		r.metrics.IncFailure(name)
		r.logg.Error(r.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds()), "background job failed", err)
		return
	}
	r.metrics.IncSuccess(name)
}

func (r *Runtime) OnConnectivityChange(fn ConnectivityHandler) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.handlers = append(r.handlers, fn)
	r.mu.Unlock()
}

// NotifyConnectivity fans a platform connectivity signal out to the handlers.
func (r *Runtime) NotifyConnectivity(ctx context.Context, online bool) {
	r.mu.Lock()
	handlers := append([]ConnectivityHandler(nil), r.handlers...)
	r.mu.Unlock()
	for _, fn := range handlers {
		fn(ctx, online)
	}
}

// PostMessage delivers msg to the attached foreground, or queues it until one
// attaches. When the queue is full the oldest message is dropped.
func (r *Runtime) PostMessage(ctx context.Context, msg Message) error {
	if !msg.Type.IsValid() {
		return fmt.Errorf("invalid message type %q", msg.Type)
	}
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()

	if sink != nil {
		err := sink.Deliver(ctx, msg)
		if err == nil {
			return nil
		}
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "foreground delivery failed; queueing message")
	}
	r.enqueue(ctx, msg)
	return nil
}

func (r *Runtime) enqueue(ctx context.Context, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queued) >= r.queueLimit {
		r.queued = r.queued[1:]
		r.logg.Warn(ctx, "foreground message queue full; dropping oldest")
	}
	r.queued = append(r.queued, msg)
}

// Attach makes sink the foreground and flushes queued messages to it in order.
func (r *Runtime) Attach(ctx context.Context, sink Sink) error {
	r.mu.Lock()
	r.sink = sink
	queued := r.queued
	r.queued = nil
	r.mu.Unlock()

	for i, msg := range queued {
		if err := sink.Deliver(ctx, msg); err != nil {
			r.mu.Lock()
			r.queued = append(append([]Message(nil), queued[i:]...), r.queued...)
			r.mu.Unlock()
			return fmt.Errorf("flush queued messages: %w", err)
		}
	}
	return nil
}

// Detach clears the foreground if it is still sink.
func (r *Runtime) Detach(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink == sink {
		r.sink = nil
	}
}

// Attached reports whether a foreground is currently attached.
func (r *Runtime) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink != nil
}

// Queued returns the number of messages waiting for a foreground.
func (r *Runtime) Queued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queued)
}
