package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/app"
	"github.com/vladislavdragonenkov/wholesale/internal/version"
)

const (
	envGRPCAddr                     = "WHOLESALE_GRPC_ADDR"
	envMetricsAddr                  = "WHOLESALE_METRICS_ADDR"
	envStorageDriver                = "WHOLESALE_STORAGE_DRIVER"
	envPostgresDSN                  = "WHOLESALE_POSTGRES_DSN"
	envPostgresAutoMigrate          = "WHOLESALE_POSTGRES_AUTO_MIGRATE"
	envIdempotencyDriver            = "WHOLESALE_IDEMPOTENCY_DRIVER"
	envRedisAddr                    = "WHOLESALE_REDIS_ADDR"
	envRedisPassword                = "WHOLESALE_REDIS_PASSWORD"
	envRedisDB                      = "WHOLESALE_REDIS_DB"
	envKafkaBrokers                 = "WHOLESALE_KAFKA_BROKERS"
	envKafkaClientID                = "WHOLESALE_KAFKA_CLIENT_ID"
	envKafkaDirectEvents            = "WHOLESALE_KAFKA_DIRECT_EVENTS"
	envOutboxPollInterval           = "WHOLESALE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize              = "WHOLESALE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts            = "WHOLESALE_OUTBOX_MAX_ATTEMPTS"
	envOutboxNotificationAttempts   = "WHOLESALE_OUTBOX_NOTIFICATION_ATTEMPTS"
	envOutboxRetryDelay             = "WHOLESALE_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending             = "WHOLESALE_OUTBOX_MAX_PENDING"
	envIdempotencyCleanupInterval   = "WHOLESALE_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize  = "WHOLESALE_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envInvoiceUseNegotiatedDiscount = "WHOLESALE_INVOICE_USE_NEGOTIATED_DISCOUNT"
	envDemoCatalog                  = "WHOLESALE_DEMO_CATALOG"
	envShutdownTimeout              = "WHOLESALE_SHUTDOWN_TIMEOUT"
	envLogLevel                     = "WHOLESALE_LOG_LEVEL"
	envLogFormat                    = "WHOLESALE_LOG_FORMAT"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	if format, ok := lookup(envLogFormat); ok && strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if raw, ok := lookup(envLogLevel); ok {
		if parsed, err := log.ParseLevel(strings.TrimSpace(raw)); err == nil {
			level = parsed
		}
	}
	log.SetLevel(level)
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig. Невалидные
// значения не роняют старт: остаётся значение по умолчанию и возвращается предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	str := func(key string, target *string, lower bool) {
		value, ok := lookup(key)
		if !ok {
			return
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if lower {
			value = strings.ToLower(value)
		}
		*target = value
	}
	boolean := func(key string, target *bool) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		value, err := parseBool(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*target = value
	}
	integer := func(key string, target *int, valid func(int) bool, rule string) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		value, err := parseInt(raw, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*target = value
	}
	duration := func(key string, target *time.Duration, valid func(time.Duration) bool, rule string) {
		raw, ok := lookup(key)
		if !ok {
			return
		}
		value, err := parseDuration(raw, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*target = value
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envGRPCAddr, &cfg.GRPCAddr, false)
	str(envMetricsAddr, &cfg.MetricsAddr, false)
	str(envStorageDriver, &cfg.StorageDriver, true)
	str(envPostgresDSN, &cfg.PostgresDSN, false)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envIdempotencyDriver, &cfg.IdempotencyDriver, true)
	str(envRedisAddr, &cfg.RedisAddr, false)
	str(envRedisPassword, &cfg.RedisPassword, false)
	integer(envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0")
	str(envKafkaBrokers, &cfg.KafkaBrokers, false)
	str(envKafkaClientID, &cfg.KafkaClientID, false)
	boolean(envKafkaDirectEvents, &cfg.KafkaDirectEvents)
	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	integer(envOutboxNotificationAttempts, &cfg.OutboxNotificationAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")
	boolean(envInvoiceUseNegotiatedDiscount, &cfg.InvoiceUseNegotiatedDiscount)
	boolean(envDemoCatalog, &cfg.DemoCatalog)
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	// .env опционален: в контейнере переменные приходят из окружения.
	_ = godotenv.Load()

	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warnf("config: %s, using default", warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka":          cfg.KafkaBrokers != "",
		"version":        version.GetVersion(),
	}).Info("запускаем OrderService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("OrderService остановлен")
}
