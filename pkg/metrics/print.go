package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrintMetrics counts routing decisions and print queue outcomes.
type PrintMetrics struct {
	routes *prometheus.CounterVec
	jobs   *prometheus.CounterVec
}

func NewPrintMetrics(reg prometheus.Registerer) *PrintMetrics {
	if reg == nil {
		return &PrintMetrics{}
	}
	routes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "print_routes_total",
		Help:      "Print requests by routing decision.",
	}, []string{"route"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "print_jobs_total",
		Help:      "Queued print jobs handled by this device, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(routes, jobs)
	return &PrintMetrics{routes: routes, jobs: jobs}
}

// IncRoute counts a routing decision (direct, queued, direct_degraded).
func (p *PrintMetrics) IncRoute(route string) {
	if p == nil || p.routes == nil {
		return
	}
	p.routes.WithLabelValues(normalizeLabel(route)).Inc()
}

// IncJob counts a consumer outcome (printed, failed, skipped).
func (p *PrintMetrics) IncJob(outcome string) {
	if p == nil || p.jobs == nil {
		return
	}
	p.jobs.WithLabelValues(normalizeLabel(outcome)).Inc()
}
