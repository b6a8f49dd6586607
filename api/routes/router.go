package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tillq/api/controllers"
	"github.com/angelmondragon/tillq/api/middleware"
	"github.com/angelmondragon/tillq/pkg/logger"
)

// Deps are the services behind the device's local API. PrintJobs may be nil
// when the device has no hosted store; the job status route is then omitted.
type Deps struct {
	Logger       *logger.Logger
	DeviceID     string
	TenantID     string
	Queue        controllers.OperationQueue
	Engine       controllers.Drainer
	Connectivity controllers.ConnectivityObserver
	Settings     controllers.RoutingSettings
	Dispatcher   controllers.PrintDispatcher
	PrintJobs    controllers.PrintJobReader
	Notify       controllers.NotificationBridge
	Socket       http.Handler
	Ready        map[string]controllers.Pinger
	Gatherer     prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	logg := deps.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.DeviceID))
		r.Get("/ready", controllers.HealthReady(logg, deps.Ready))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/operations", func(r chi.Router) {
			r.Get("/", controllers.ListOperations(deps.Queue, logg))
			r.Post("/", controllers.EnqueueOperation(deps.Queue, logg))
			r.Delete("/", controllers.ClearOperations(deps.Queue, logg))
		})
		r.Post("/sync", controllers.SyncNow(deps.Engine, logg))

		r.Get("/connectivity", controllers.ConnectivityStatus(deps.Connectivity))
		r.Post("/connectivity", controllers.ReportConnectivity(deps.Connectivity, logg))

		r.Route("/print", func(r chi.Router) {
			r.Get("/settings", controllers.GetPrintSettings(deps.Settings, logg))
			r.Put("/settings", controllers.PutPrintSettings(deps.Settings, logg))
			r.Post("/", controllers.Print(deps.Dispatcher, logg))
			if deps.PrintJobs != nil {
				r.Get("/jobs", controllers.ListPendingPrintJobs(deps.PrintJobs, deps.TenantID, logg))
				r.Get("/jobs/{id}", controllers.GetPrintJob(deps.PrintJobs, deps.TenantID, logg))
			}
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notify))
			r.Post("/actions", controllers.NotificationAction(deps.Notify, logg))
		})

		if deps.Socket != nil {
			r.Get("/ws", deps.Socket.ServeHTTP)
		}
	})

	return r
}
