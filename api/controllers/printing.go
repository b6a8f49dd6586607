package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tillq/api/responses"
	"github.com/angelmondragon/tillq/api/validators"
	"github.com/angelmondragon/tillq/internal/printing"
	"github.com/angelmondragon/tillq/pkg/db/models"
	"github.com/angelmondragon/tillq/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
	"github.com/angelmondragon/tillq/pkg/logger"
)

type RoutingSettings interface {
	Load(ctx context.Context) (printing.PrintRoutingConfig, error)
	Save(ctx context.Context, cfg printing.PrintRoutingConfig) error
}

type PrintDispatcher interface {
	Print(ctx context.Context, req printing.Request) (printing.Outcome, error)
}

type PrintJobReader interface {
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.PrintJob, error)
	PollPending(ctx context.Context, tenantID string, limit int) ([]models.PrintJob, error)
}

// PrintJobDTO is the producer's view of a queued job.
type PrintJobDTO struct {
	ID              uuid.UUID            `json:"id"`
	PrintType       enums.PrintType      `json:"print_type"`
	Status          enums.PrintJobStatus `json:"status"`
	CreatedBy       string               `json:"created_by"`
	CreatedAt       time.Time            `json:"created_at"`
	PrintedAt       *time.Time           `json:"printed_at,omitempty"`
	PrintedByDevice *string              `json:"printed_by_device,omitempty"`
	FailedAt        *time.Time           `json:"failed_at,omitempty"`
	LastError       *string              `json:"last_error,omitempty"`
}

func toPrintJobDTO(job *models.PrintJob) *PrintJobDTO {
	if job == nil {
		return nil
	}
	return &PrintJobDTO{
		ID:              job.ID,
		PrintType:       job.PrintType,
		Status:          job.Status,
		CreatedBy:       job.CreatedBy,
		CreatedAt:       job.CreatedAt,
		PrintedAt:       job.PrintedAt,
		PrintedByDevice: job.PrintedByDevice,
		FailedAt:        job.FailedAt,
		LastError:       job.LastError,
	}
}

type printSettingsRequest struct {
	IsPrintServer *bool `json:"is_print_server" validate:"required"`
	UsePrintQueue *bool `json:"use_print_queue" validate:"required"`
}

type printRequest struct {
	PrintType string          `json:"print_type" validate:"required,oneof=kitchen_ticket kitchen_ticket_sector customer_receipt cancellation_ticket"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
	CreatedBy string          `json:"created_by" validate:"max=128"`
}

func GetPrintSettings(settings RoutingSettings, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := settings.Load(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "load print settings"))
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"is_print_server": cfg.IsPrintServer,
			"use_print_queue": cfg.UsePrintQueue,
			"route":           printing.Decide(cfg),
		})
	}
}

func PutPrintSettings(settings RoutingSettings, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req printSettingsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cfg := printing.PrintRoutingConfig{IsPrintServer: *req.IsPrintServer, UsePrintQueue: *req.UsePrintQueue}
		if err := settings.Save(r.Context(), cfg); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "save print settings"))
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"is_print_server": cfg.IsPrintServer,
			"use_print_queue": cfg.UsePrintQueue,
			"route":           printing.Decide(cfg),
		})
	}
}

func Print(dispatcher PrintDispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req printRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := dispatcher.Print(r.Context(), printing.Request{
			PrintType: enums.PrintType(req.PrintType),
			Payload:   req.Payload,
			CreatedBy: req.CreatedBy,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if outcome.Route == printing.RouteQueued {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"route": outcome.Route,
			"job":   toPrintJobDTO(outcome.Job),
		})
	}
}

func GetPrintJob(jobs PrintJobReader, tenantID string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid print job id"))
			return
		}
		job, err := jobs.Get(r.Context(), tenantID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPrintJobDTO(job))
	}
}

// ListPendingPrintJobs shows the tenant's backlog, oldest first.
func ListPendingPrintJobs(jobs PrintJobReader, tenantID string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pending, err := jobs.PollPending(r.Context(), tenantID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]*PrintJobDTO, 0, len(pending))
		for i := range pending {
			out = append(out, toPrintJobDTO(&pending[i]))
		}
		responses.WriteList(w, out, int64(len(out)))
	}
}
