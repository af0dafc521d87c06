package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics — метрики outbox worker.
type OutboxMetrics struct {
	publishAttempts  *prometheus.CounterVec
	pendingRecords   prometheus.Gauge
	pendingByStream  *prometheus.GaugeVec
	oldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики outbox worker.
func NewOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &OutboxMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "wholesale_outbox_publish_attempts_total",
			Help: "Outbox publish attempts by stream and result",
		}, []string{"stream", "result"}),
		pendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "wholesale_outbox_pending_records",
			Help: "Current number of pending records in the transactional outbox",
		}),
		pendingByStream: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "wholesale_outbox_pending_by_stream",
			Help: "Pending outbox records per delivery stream",
		}, []string{"stream"}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "wholesale_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
	}
}

// RecordPublish учитывает попытку публикации.
func (m *OutboxMetrics) RecordPublish(stream, result string) {
	m.publishAttempts.WithLabelValues(stream, result).Inc()
}

// SetBacklog обновляет размер и возраст backlog.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAgeSeconds float64) {
	m.pendingRecords.Set(float64(pending))
	m.oldestPendingAge.Set(oldestAgeSeconds)
}

// SetStreamBacklog обновляет backlog одного потока.
func (m *OutboxMetrics) SetStreamBacklog(stream string, pending int) {
	m.pendingByStream.WithLabelValues(stream).Set(float64(pending))
}

// CleanupMetrics — метрики очистки ключей идемпотентности.
type CleanupMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

// NewCleanupMetrics регистрирует метрики очистки.
func NewCleanupMetrics(registerer prometheus.Registerer) *CleanupMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &CleanupMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "wholesale_idempotency_cleanup_runs_total",
			Help: "Idempotency cleanup runs by result",
		}, []string{"result"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "wholesale_idempotency_cleanup_deleted_total",
			Help: "Expired idempotency records deleted",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "wholesale_idempotency_cleanup_last_deleted",
			Help: "Records deleted during the last cleanup run",
		}),
	}
}

// RecordRun учитывает завершённый цикл очистки.
func (m *CleanupMetrics) RecordRun(result string, deleted int) {
	m.runs.WithLabelValues(result).Inc()
	if result == "ok" {
		m.lastDeleted.Set(float64(deleted))
	}
}

// RecordDeleted добавляет удалённые записи одной порции.
func (m *CleanupMetrics) RecordDeleted(n int) {
	m.deleted.Add(float64(n))
}
