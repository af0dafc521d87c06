package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics содержит метрики жизненного цикла заказа.
type LifecycleMetrics struct {
	ordersCreated prometheus.Counter

	// Переходы статусов по результату
	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	rejections         *prometheus.CounterVec
	conflictRetries    prometheus.Counter

	notifications  *prometheus.CounterVec
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewLifecycleMetrics регистрирует метрики в DefaultRegisterer.
func NewLifecycleMetrics() *LifecycleMetrics {
	return NewLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLifecycleMetricsWithRegisterer регистрирует метрики в указанном реестре.
func NewLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "wholesale_orders_created_total",
			Help: "Total number of orders created",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "wholesale_order_transitions_total",
			Help: "Order status transitions by source, target and result",
		}, []string{"from", "to", "result"}),
		transitionDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "wholesale_order_transition_duration_seconds",
			Help:    "Duration of order status transitions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"to"}),
		rejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "wholesale_order_rejections_total",
			Help: "Rejected order commands by error kind",
		}, []string{"kind"}),
		conflictRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "wholesale_order_conflict_retries_total",
			Help: "Read-transition cycles retried after a concurrency conflict",
		}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "wholesale_notifications_total",
			Help: "Notifications emitted by severity",
		}, []string{"severity"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "wholesale_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "wholesale_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *LifecycleMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordTransition фиксирует результат перехода и его длительность.
func (m *LifecycleMetrics) RecordTransition(from, to, result string, duration time.Duration) {
	m.transitions.WithLabelValues(from, to, result).Inc()
	m.transitionDuration.WithLabelValues(to).Observe(duration.Seconds())
}

// RecordRejection считает отказ по виду ошибки.
func (m *LifecycleMetrics) RecordRejection(kind string) {
	m.rejections.WithLabelValues(kind).Inc()
}

// RecordConflictRetry считает повтор после конфликта версий.
func (m *LifecycleMetrics) RecordConflictRetry() {
	m.conflictRetries.Inc()
}

// RecordNotification считает уведомление.
func (m *LifecycleMetrics) RecordNotification(severity string) {
	m.notifications.WithLabelValues(severity).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *LifecycleMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *LifecycleMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
