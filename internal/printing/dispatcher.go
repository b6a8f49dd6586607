package printing

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/angelmondragon/tillq/internal/printqueue"
	"github.com/angelmondragon/tillq/pkg/db/models"
	"github.com/angelmondragon/tillq/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/metrics"
)

// Printer renders a ticket on this device. Byte formatting lives behind it.
type Printer interface {
	Print(ctx context.Context, printType enums.PrintType, payload json.RawMessage) error
}

type routingSource interface {
	Load(ctx context.Context) (PrintRoutingConfig, error)
}

type jobQueue interface {
	Enqueue(ctx context.Context, in printqueue.EnqueueInput) (*models.PrintJob, error)
}

// Request is one print call from a producing screen.
type Request struct {
	PrintType enums.PrintType
	Payload   json.RawMessage
	CreatedBy string
}

// Outcome reports where a request went.
type Outcome struct {
	Route Route
	Job   *models.PrintJob
}

type DispatcherParams struct {
	Settings routingSource
	Queue    jobQueue
	Printer  Printer
	Logger   *logger.Logger
	Metrics  *metrics.PrintMetrics
	TenantID string
}

// Dispatcher routes print requests using the flags in force at call time.
type Dispatcher struct {
	settings routingSource
	queue    jobQueue
	printer  Printer
	logg     *logger.Logger
	metrics  *metrics.PrintMetrics
	tenantID string
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Settings == nil {
		return nil, errors.New("routing settings are required")
	}
	if params.Printer == nil {
		return nil, errors.New("printer is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Dispatcher{
		settings: params.Settings,
		queue:    params.Queue,
		printer:  params.Printer,
		logg:     params.Logger,
		metrics:  params.Metrics,
		tenantID: params.TenantID,
	}, nil
}

// Print re-reads the routing flags, then prints locally or enqueues.
func (d *Dispatcher) Print(ctx context.Context, req Request) (Outcome, error) {
	if !req.PrintType.IsValid() {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid print type")
	}
	cfg, err := d.settings.Load(ctx)
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "load print routing")
	}

	route := Decide(cfg)
	d.metrics.IncRoute(string(route))
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"route":      route,
		"print_type": req.PrintType,
	})

	if route.PrintsLocally() {
		if route == RouteDirectDegraded {
			d.logg.Warn(logCtx, "no print server configured; printing locally")
		}
		if err := d.printer.Print(ctx, req.PrintType, req.Payload); err != nil {
			return Outcome{Route: route}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "local print failed")
		}
		return Outcome{Route: route}, nil
	}

	if d.queue == nil {
		return Outcome{Route: route}, pkgerrors.New(pkgerrors.CodeDependency, "print queue is not configured")
	}
	job, err := d.queue.Enqueue(ctx, printqueue.EnqueueInput{
		TenantID:  d.tenantID,
		CreatedBy: req.CreatedBy,
		PrintType: req.PrintType,
		Payload:   req.Payload,
	})
	if err != nil {
		return Outcome{Route: route}, err
	}
	d.logg.Info(d.logg.WithPrintJobID(logCtx, job.ID.String()), "print request queued")
	return Outcome{Route: route, Job: job}, nil
}
