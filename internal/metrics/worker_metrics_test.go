package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	require.Same(t, m.pendingRecords, NewOutboxMetrics(reg).pendingRecords)

	m.RecordPublish("notifications", "sent")
	m.SetBacklog(3, 1.5)

	var metric dto.Metric
	require.NoError(t, m.publishAttempts.WithLabelValues("notifications", "sent").Write(&metric))
	require.Equal(t, float64(1), metric.Counter.GetValue())

	metric.Reset()
	require.NoError(t, m.pendingRecords.Write(&metric))
	require.Equal(t, float64(3), metric.Gauge.GetValue())

	m.SetStreamBacklog("notifications", 2)
	metric.Reset()
	require.NoError(t, m.pendingByStream.WithLabelValues("notifications").Write(&metric))
	require.Equal(t, float64(2), metric.Gauge.GetValue())
}

func TestCleanupMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCleanupMetrics(reg)

	m.RecordDeleted(4)
	m.RecordRun("ok", 4)
	m.RecordRun("error", 0)

	var metric dto.Metric
	require.NoError(t, m.deleted.Write(&metric))
	require.Equal(t, float64(4), metric.Counter.GetValue())

	metric.Reset()
	require.NoError(t, m.lastDeleted.Write(&metric))
	require.Equal(t, float64(4), metric.Gauge.GetValue())
}
