package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/tillq/api/responses"
	"github.com/angelmondragon/tillq/internal/syncer"
	"github.com/angelmondragon/tillq/pkg/logger"
)

type Drainer interface {
	Drain(ctx context.Context) (syncer.Result, error)
	State() syncer.State
}

type failureDTO struct {
	OperationID string `json:"operation_id"`
	Action      string `json:"action"`
	Resource    string `json:"resource"`
	Error       string `json:"error"`
}

// SyncResultDTO is the response of a manual drain.
type SyncResultDTO struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Deferred  int          `json:"deferred"`
	State     syncer.State `json:"state"`
	Failures  []failureDTO `json:"failures,omitempty"`
}

func SyncNow(engine Drainer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := engine.Drain(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := SyncResultDTO{
			Succeeded: res.Succeeded,
			Failed:    res.Failed,
			Deferred:  res.Deferred,
			State:     engine.State(),
		}
		for _, f := range res.Failures {
			out.Failures = append(out.Failures, failureDTO{
				OperationID: f.OperationID.String(),
				Action:      string(f.Action),
				Resource:    f.Resource,
				Error:       f.Err.Error(),
			})
		}
		responses.WriteSuccess(w, out)
	}
}
