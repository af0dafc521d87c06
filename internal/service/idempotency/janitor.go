// Package idempotency обслуживает журнал команд API: удаляет записи,
// у которых истёк срок хранения ответа.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/metrics"
)

// Config задаёт расписание и объём одной уборки.
type Config struct {
	// Interval — пауза между окончанием уборки и началом следующей.
	Interval time.Duration
	// BatchSize — сколько записей удаляется одним запросом к хранилищу.
	BatchSize int
	// MaxBatches ограничивает число запросов за уборку, чтобы большой
	// хвост не держал хранилище; остаток дочищается на следующем проходе.
	MaxBatches int
}

// DefaultConfig — значения по умолчанию.
func DefaultConfig() Config {
	return Config{
		Interval:   10 * time.Minute,
		BatchSize:  500,
		MaxBatches: 20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = def.MaxBatches
	}
	return c
}

// Option настраивает Janitor.
type Option func(*Janitor)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(j *Janitor) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithMetrics включает метрики уборки.
func WithMetrics(m *metrics.CleanupMetrics) Option {
	return func(j *Janitor) { j.metrics = m }
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		if now != nil {
			j.now = now
		}
	}
}

// SweepResult — итог одной уборки.
type SweepResult struct {
	Deleted int
	Batches int
	// Exhausted — просроченных записей больше не осталось.
	Exhausted bool
}

// Janitor периодически удаляет просроченные команды из журнала.
type Janitor struct {
	journal domain.IdempotencyRepository
	cfg     Config
	logger  *log.Entry
	metrics *metrics.CleanupMetrics
	now     func() time.Time
}

// NewJanitor создаёт уборщика журнала команд.
func NewJanitor(journal domain.IdempotencyRepository, cfg Config, options ...Option) *Janitor {
	j := &Janitor{
		journal: journal,
		cfg:     cfg.withDefaults(),
		logger:  log.WithField("component", "command-janitor"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(j)
	}
	return j
}

// Run убирает журнал сразу и затем через Interval после каждой уборки до отмены ctx.
// Если предыдущая уборка упёрлась в MaxBatches, следующая начинается без паузы.
func (j *Janitor) Run(ctx context.Context) {
	if j.journal == nil {
		j.logger.Warn("command janitor is disabled: journal is nil")
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		result, err := j.Sweep(ctx, j.now())
		if errors.Is(err, context.Canceled) {
			return
		}
		j.report(result, err)

		next := j.cfg.Interval
		if err == nil && !result.Exhausted {
			next = 0
		}
		timer.Reset(next)
	}
}

// Sweep удаляет команды, просроченные к before, не более MaxBatches порций.
func (j *Janitor) Sweep(ctx context.Context, before time.Time) (SweepResult, error) {
	if before.IsZero() {
		before = j.now()
	}

	var result SweepResult
	for result.Batches < j.cfg.MaxBatches {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		deleted, err := j.journal.DeleteExpired(before, j.cfg.BatchSize)
		if err != nil {
			return result, err
		}
		result.Batches++
		result.Deleted += deleted
		if deleted > 0 && j.metrics != nil {
			j.metrics.RecordDeleted(deleted)
		}
		if deleted < j.cfg.BatchSize {
			result.Exhausted = true
			return result, nil
		}
	}
	return result, nil
}

func (j *Janitor) report(result SweepResult, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if j.metrics != nil {
		j.metrics.RecordRun(outcome, result.Deleted)
	}

	entry := j.logger.WithFields(log.Fields{
		"deleted": result.Deleted,
		"batches": result.Batches,
	})
	switch {
	case err != nil:
		entry.WithError(err).Warn("command journal sweep failed")
	case !result.Exhausted:
		entry.Info("command journal sweep hit batch limit")
	case result.Deleted > 0:
		entry.Info("command journal swept")
	}
}
