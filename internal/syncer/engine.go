package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/tillq/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/metrics"
)

const (
	defaultExecutorTimeout = 15 * time.Second
	drainKey               = "drain"
)

type operationQueue interface {
	ListPending(ctx context.Context) ([]models.Operation, error)
	Remove(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, cause error) error
	PendingCount(ctx context.Context) (int64, error)
}

// CompletionHook observes every finished drain.
type CompletionHook func(ctx context.Context, result Result)

type EngineParams struct {
	Queue           operationQueue
	Registry        *ExecutorRegistry
	Logger          *logger.Logger
	Metrics         *metrics.SyncMetrics
	ExecutorTimeout time.Duration
	OnComplete      CompletionHook
}

// Engine replays the local outbox against the remote store, one drain at a time.
type Engine struct {
	queue      operationQueue
	registry   *ExecutorRegistry
	logg       *logger.Logger
	metrics    *metrics.SyncMetrics
	timeout    time.Duration
	onComplete CompletionHook

	group singleflight.Group
	mu    sync.RWMutex
	state State
	last  *Result
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Queue == nil {
		return nil, errors.New("operation queue is required")
	}
	if params.Registry == nil {
		return nil, errors.New("executor registry is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	timeout := params.ExecutorTimeout
	if timeout <= 0 {
		timeout = defaultExecutorTimeout
	}
	return &Engine{
		queue:      params.Queue,
		registry:   params.Registry,
		logg:       params.Logger,
		metrics:    params.Metrics,
		timeout:    timeout,
		onComplete: params.OnComplete,
		state:      StateIdle,
	}, nil
}

// State reports whether a drain is running and how the last one ended.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LastResult returns the outcome of the most recent completed drain.
func (e *Engine) LastResult() (Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return Result{}, false
	}
	return *e.last, true
}

// Drain replays every pending operation in FIFO order. Callers that arrive
// while a drain is running share its result instead of starting another.
// Per-operation failures are reported in Result, not as the returned error;
// the error is reserved for a store that cannot be read or updated.
func (e *Engine) Drain(ctx context.Context) (Result, error) {
	v, err, _ := e.group.Do(drainKey, func() (any, error) {
		return e.drain(ctx)
	})
	res, _ := v.(Result)
	return res, err
}

// Trigger starts a drain in the background and logs its outcome.
func (e *Engine) Trigger(ctx context.Context, reason string) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx := e.logg.WithField(ctx, "trigger", reason)
		res, err := e.Drain(ctx)
		if err != nil {
			e.logg.Error(ctx, "triggered drain failed", err)
			return
		}
		if res.Failed > 0 {
			e.logg.Error(ctx, "triggered drain left failures", res.Err())
		}
	}()
}

func (e *Engine) drain(ctx context.Context) (Result, error) {
	e.setState(StateDraining)
	started := time.Now()
	var res Result

	ops, err := e.queue.ListPending(ctx)
	if err != nil {
		e.finish(ctx, res, started)
		return res, err
	}

	blocked := make(map[uuid.UUID]struct{})
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			e.finish(ctx, res, started)
			return res, err
		}

		fields := operationFields(op)
		if op.DependsOn != nil {
			if _, ok := blocked[*op.DependsOn]; ok {
				blocked[op.ID] = struct{}{}
				res.Deferred++
				e.metrics.ObserveOperation("deferred")
				e.logg.Info(e.logg.WithFields(ctx, fields), "outbox operation deferred behind failed dependency")
				continue
			}
		}

		if execErr := e.execute(ctx, op); execErr != nil {
			blocked[op.ID] = struct{}{}
			res.Failed++
			res.Failures = append(res.Failures, Failure{
				OperationID: op.ID,
				Action:      op.Action,
				Resource:    op.Resource,
				Err:         execErr,
			})
			e.metrics.ObserveOperation("failed")

			logCtx := e.logg.WithField(e.logg.WithFields(ctx, fields), "error", execErr.Error())
			e.logg.Warn(logCtx, "outbox operation replay failed")
			if recErr := e.queue.RecordFailure(ctx, op.ID, execErr); recErr != nil {
				e.logg.Error(logCtx, "record operation failure", recErr)
			}
			continue
		}

		if err := e.queue.Remove(ctx, op.ID); err != nil {
			// applied remotely but still queued; the next drain replays it idempotently
			e.finish(ctx, res, started)
			return res, fmt.Errorf("remove acknowledged operation %s: %w", op.ID, err)
		}
		res.Succeeded++
		e.metrics.ObserveOperation("succeeded")
		e.logg.Debug(e.logg.WithFields(ctx, fields), "outbox operation replayed")
	}

	e.finish(ctx, res, started)
	return res, nil
}

func (e *Engine) execute(ctx context.Context, op models.Operation) (err error) {
	exec, err := e.registry.Resolve(op.Action, op.Resource)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolve executor")
	}

	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return exec.Execute(opCtx, op)
}

func (e *Engine) finish(ctx context.Context, res Result, started time.Time) {
	state := StateIdle
	if res.Failed > 0 {
		state = StateIdleWithFailures
	}
	e.mu.Lock()
	e.state = state
	e.last = &res
	e.mu.Unlock()

	e.metrics.ObserveDrain(time.Since(started))
	if pending, err := e.queue.PendingCount(ctx); err == nil {
		e.metrics.SetPending(pending)
	}

	if res.Attempted()+res.Deferred > 0 {
		e.logg.Info(e.logg.WithFields(ctx, map[string]any{
			"succeeded":   res.Succeeded,
			"failed":      res.Failed,
			"deferred":    res.Deferred,
			"duration_ms": time.Since(started).Milliseconds(),
		}), "outbox drain completed")
	}
	if e.onComplete != nil {
		e.onComplete(ctx, res)
	}
}

func (e *Engine) setState(state State) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

func operationFields(op models.Operation) map[string]any {
	fields := map[string]any{
		"operation_id":  op.ID.String(),
		"action":        op.Action,
		"resource":      op.Resource,
		"attempt_count": op.AttemptCount,
	}
	if op.RecordID != "" {
		fields["record_id"] = op.RecordID
	}
	if op.DependsOn != nil {
		fields["depends_on"] = op.DependsOn.String()
	}
	return fields
}
