package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestSyncMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)
	m.ObserveOperation("succeeded")
	m.ObserveOperation("succeeded")
	m.ObserveOperation("failed")
	m.ObserveDrain(40 * time.Millisecond)
	m.SetPending(3)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "tillq_sync_operations_total", "result", "succeeded")
	require.NoError(t, err)
	require.Equal(t, float64(2), got)

	got, err = fetchCounterValue(mfs, "tillq_sync_operations_total", "result", "failed")
	require.NoError(t, err)
	require.Equal(t, float64(1), got)

	pending, err := fetchGaugeValue(mfs, "tillq_outbox_pending_operations")
	require.NoError(t, err)
	require.Equal(t, float64(3), pending)

	require.NotNil(t, findMetricFamily(mfs, "tillq_sync_drain_duration_seconds"))
}

func TestPrintMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrintMetrics(reg)
	m.IncRoute("queued")
	m.IncJob("printed")
	m.IncJob("")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "tillq_print_routes_total", "route", "queued")
	require.NoError(t, err)
	require.Equal(t, float64(1), got)

	got, err = fetchCounterValue(mfs, "tillq_print_jobs_total", "outcome", "unknown")
	require.NoError(t, err)
	require.Equal(t, float64(1), got)
}
