package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/tillq/api/responses"
	"github.com/angelmondragon/tillq/api/validators"
	"github.com/angelmondragon/tillq/internal/connectivity"
	"github.com/angelmondragon/tillq/pkg/logger"
)

type ConnectivityObserver interface {
	Observe(ctx context.Context, online bool)
	Status() connectivity.Status
}

type connectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

func ReportConnectivity(monitor ConnectivityObserver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req connectivityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		monitor.Observe(r.Context(), *req.Online)
		responses.WriteSuccess(w, map[string]any{"status": monitor.Status()})
	}
}

func ConnectivityStatus(monitor ConnectivityObserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]any{"status": monitor.Status()})
	}
}
