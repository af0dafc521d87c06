// Package outbox доставляет сообщения transactional outbox: события жизненного
// цикла заказа и уведомления покупателям идут разными маршрутами.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/metrics"
)

const (
	maxRetryDelay = 5 * time.Second

	// drainRounds ограничивает Drain, чтобы вечно падающий брокер не держал shutdown.
	drainRounds = 20
)

// Config задаёт опрос outbox и бюджет попыток по потокам.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	// LifecycleAttempts — попыток на событие заказа до dead letter.
	LifecycleAttempts int
	// NotificationAttempts — попыток на уведомление. Уведомление быстро
	// устаревает, поэтому бюджет меньше.
	NotificationAttempts int
	RetryBaseDelay       time.Duration
}

// DefaultConfig — значения по умолчанию.
func DefaultConfig() Config {
	return Config{
		PollInterval:         time.Second,
		BatchSize:            100,
		LifecycleAttempts:    3,
		NotificationAttempts: 2,
		RetryBaseDelay:       50 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.LifecycleAttempts <= 0 {
		c.LifecycleAttempts = def.LifecycleAttempts
	}
	if c.NotificationAttempts <= 0 {
		c.NotificationAttempts = def.NotificationAttempts
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = 0
	}
	return c
}

// Routes — куда доставляется каждый поток. Notifications без значения
// доставляются через Lifecycle. DeadLetter необязателен.
type Routes struct {
	Lifecycle     domain.OutboxPublisher
	Notifications domain.OutboxPublisher
	DeadLetter    domain.OutboxPublisher
}

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics включает prometheus-метрики доставки.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithClock подменяет часы (возраст backlog, метка dead letter).
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// Worker разбирает pending-сообщения outbox и доставляет их по маршрутам потоков.
type Worker struct {
	repo    domain.OutboxRepository
	routes  Routes
	cfg     Config
	metrics *metrics.OutboxMetrics
	logger  *log.Entry
	now     func() time.Time
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, routes Routes, cfg Config, options ...Option) *Worker {
	if routes.Notifications == nil {
		routes.Notifications = routes.Lifecycle
	}
	w := &Worker{
		repo:   repo,
		routes: routes,
		cfg:    cfg.withDefaults(),
		logger: log.WithField("component", "outbox-worker"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.routes.Lifecycle == nil {
		w.logger.Warn("outbox worker is disabled: repo or lifecycle route is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// Drain доставляет backlog до опустошения; вызывается при остановке сервиса.
func (w *Worker) Drain(ctx context.Context) int {
	total := 0
	for round := 0; round < drainRounds; round++ {
		processed := w.ProcessOnce(ctx)
		total += processed
		if processed < w.cfg.BatchSize || ctx.Err() != nil {
			break
		}
	}
	return total
}

// ProcessOnce разбирает одну порцию и возвращает число обработанных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	w.refreshBacklog()

	batch, err := w.repo.PullPending(w.cfg.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	processed := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		processed++
		w.deliver(ctx, msg)
	}

	if processed > 0 {
		w.refreshBacklog()
	}
	return processed
}

// deliver доставляет одно сообщение и фиксирует итог в outbox.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) {
	stream := msg.Stream()
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"order_id":   msg.AggregateID,
		"event_type": msg.EventType,
		"stream":     stream,
	})

	err := w.publish(ctx, stream, msg)
	if err == nil {
		if markErr := w.repo.MarkSent(msg.ID); markErr != nil {
			entry.WithError(markErr).Warn("failed to mark outbox message as sent")
		}
		return
	}
	if ctx.Err() != nil {
		// остаётся pending и уйдёт на следующем запуске
		return
	}

	entry.WithError(err).Error("outbox delivery failed")
	w.record(stream, "failed")
	if dlqErr := w.deadLetter(msg, err); dlqErr != nil {
		entry.WithError(dlqErr).Warn("failed to dead-letter outbox message")
		w.record(stream, "dlq_failed")
	}
	if markErr := w.repo.MarkFailed(msg.ID, err.Error()); markErr != nil {
		entry.WithError(markErr).Warn("failed to mark outbox message as failed")
	}
}

func (w *Worker) publish(ctx context.Context, stream domain.OutboxStream, msg domain.OutboxMessage) error {
	publisher, attempts := w.routes.Lifecycle, w.cfg.LifecycleAttempts
	if stream == domain.OutboxStreamNotifications {
		publisher, attempts = w.routes.Notifications, w.cfg.NotificationAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = publisher.Publish(msg); lastErr == nil {
			w.record(stream, "sent")
			return nil
		}
		w.record(stream, "retry_error")
		if attempt == attempts {
			break
		}
		if err := sleepCtx(ctx, w.retryBackoff(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", domain.ErrOutboxPublish, stream, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryBackoff удваивает задержку на каждой попытке, но не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	delay := w.cfg.RetryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// deadLetter упаковывает сообщение с причиной отказа; cmd/dlq-reprocess
// возвращает его в поток по полю stream.
func (w *Worker) deadLetter(msg domain.OutboxMessage, cause error) error {
	if w.routes.DeadLetter == nil {
		return nil
	}

	payload, err := json.Marshal(deadLetterEnvelope{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		OrderID:        msg.AggregateID,
		EventType:      msg.EventType,
		Stream:         msg.Stream(),
		Payload:        json.RawMessage(msg.Payload),
		PublishError:   cause.Error(),
		DeadLetteredAt: w.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	if err := w.routes.DeadLetter.Publish(domain.OutboxMessage{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

type deadLetterEnvelope struct {
	OutboxID       string              `json:"outbox_id"`
	AggregateType  string              `json:"aggregate_type"`
	OrderID        string              `json:"order_id"`
	EventType      string              `json:"event_type"`
	Stream         domain.OutboxStream `json:"stream"`
	Payload        json.RawMessage     `json:"payload"`
	PublishError   string              `json:"publish_error"`
	DeadLetteredAt string              `json:"dlq_published_at"`
}

func (w *Worker) record(stream domain.OutboxStream, result string) {
	if w.metrics != nil {
		w.metrics.RecordPublish(string(stream), result)
	}
}

func (w *Worker) refreshBacklog() {
	if w.metrics == nil {
		return
	}
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)
	for _, stream := range []domain.OutboxStream{domain.OutboxStreamLifecycle, domain.OutboxStreamNotifications} {
		w.metrics.SetStreamBacklog(string(stream), stats.PendingByStream[stream])
	}
}
