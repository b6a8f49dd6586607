package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/tillq/api/responses"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
	"github.com/angelmondragon/tillq/pkg/logger"
)

// Pinger is any dependency whose liveness gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(deviceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tillq-Device", deviceID)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency. Nil entries are skipped.
func HealthReady(logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		var failed []string
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				failed = append(failed, name)
				continue
			}
			checks[name] = "ok"
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
