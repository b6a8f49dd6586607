package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillq/api/responses"
	"github.com/angelmondragon/tillq/api/validators"
	"github.com/angelmondragon/tillq/pkg/db/models"
	"github.com/angelmondragon/tillq/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/outbox"
)

// OperationQueue is the local outbox as seen by the API.
type OperationQueue interface {
	Enqueue(ctx context.Context, in outbox.NewOperation) (uuid.UUID, error)
	ListPending(ctx context.Context) ([]models.Operation, error)
	Clear(ctx context.Context) (int64, error)
}

type enqueueOperationRequest struct {
	Action    string          `json:"action" validate:"required,oneof=create update delete"`
	Resource  string          `json:"resource" validate:"required,max=128"`
	RecordID  string          `json:"record_id" validate:"max=128"`
	Payload   json.RawMessage `json:"payload"`
	DependsOn *uuid.UUID      `json:"depends_on"`
}

// OperationDTO is the public shape of a queued operation.
type OperationDTO struct {
	ID            uuid.UUID             `json:"id"`
	Action        enums.OperationAction `json:"action"`
	Resource      string                `json:"resource"`
	RecordID      string                `json:"record_id,omitempty"`
	Payload       json.RawMessage       `json:"payload"`
	DependsOn     *uuid.UUID            `json:"depends_on,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	AttemptCount  int                   `json:"attempt_count"`
	LastError     *string               `json:"last_error,omitempty"`
	LastAttemptAt *time.Time            `json:"last_attempt_at,omitempty"`
}

func toOperationDTO(op models.Operation) OperationDTO {
	return OperationDTO{
		ID:            op.ID,
		Action:        op.Action,
		Resource:      op.Resource,
		RecordID:      op.RecordID,
		Payload:       json.RawMessage(op.Payload),
		DependsOn:     op.DependsOn,
		CreatedAt:     op.CreatedAt,
		AttemptCount:  op.AttemptCount,
		LastError:     op.LastError,
		LastAttemptAt: op.LastAttemptAt,
	}
}

func EnqueueOperation(queue OperationQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueOperationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := queue.Enqueue(r.Context(), outbox.NewOperation{
			Action:    enums.OperationAction(req.Action),
			Resource:  req.Resource,
			RecordID:  req.RecordID,
			Payload:   req.Payload,
			DependsOn: req.DependsOn,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"id": id})
	}
}

func ListOperations(queue OperationQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ops, err := queue.ListPending(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]OperationDTO, 0, len(ops))
		for _, op := range ops {
			out = append(out, toOperationDTO(op))
		}
		responses.WriteList(w, out, int64(len(out)))
	}
}

// ClearOperations drops every queued operation. The caller must pass
// confirm=true; the prompt itself belongs to the client.
func ClearOperations(queue OperationQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
		if !confirmed {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "clearing the queue requires confirm=true"))
			return
		}
		removed, err := queue.Clear(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"removed": removed})
	}
}
