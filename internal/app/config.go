package app

import (
	"fmt"
	"strings"
	"time"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	IdempotencyDriverMemory   = "memory"
	IdempotencyDriverPostgres = "postgres"
	IdempotencyDriverRedis    = "redis"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// IdempotencyDriver пустой — ключи хранятся там же, где заказы.
	IdempotencyDriver string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int

	// KafkaBrokers — список через запятую; пустой отключает Kafka.
	KafkaBrokers  string
	KafkaClientID string
	// KafkaDirectEvents дополнительно публикует типизированные order.* события мимо outbox.
	KafkaDirectEvents bool

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	// OutboxNotificationAttempts — бюджет попыток для уведомлений; они устаревают быстрее событий.
	OutboxNotificationAttempts int
	OutboxRetryDelay           time.Duration
	// OutboxMaxPending — порог backlog, после которого /healthz отдаёт degraded; 0 отключает.
	OutboxMaxPending int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	InvoiceUseNegotiatedDiscount bool
	DemoCatalog                  bool
	ShutdownTimeout              time.Duration
}

// DefaultConfig возвращает настройки для локального запуска в памяти.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		RedisAddr:                   "localhost:6379",
		KafkaClientID:               "wholesale-order-service",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxNotificationAttempts:  2,
		OutboxRetryDelay:            200 * time.Millisecond,
		OutboxMaxPending:            1000,
		IdempotencyCleanupInterval:  time.Hour,
		IdempotencyCleanupBatchSize: 500,
		ShutdownTimeout:             5 * time.Second,
	}
}

// idempotencyDriver возвращает явный драйвер ключей или драйвер хранилища.
func (c Config) idempotencyDriver() string {
	if c.IdempotencyDriver != "" {
		return c.IdempotencyDriver
	}
	return c.StorageDriver
}

// kafkaBrokerList разбирает KafkaBrokers, пропуская пустые элементы.
func (c Config) kafkaBrokerList() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// Validate проверяет согласованность драйверов до открытия соединений.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres storage driver requires dsn")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.idempotencyDriver() {
	case IdempotencyDriverMemory:
	case IdempotencyDriverPostgres:
		if c.StorageDriver != StorageDriverPostgres {
			return fmt.Errorf("postgres idempotency driver requires postgres storage driver")
		}
	case IdempotencyDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("redis idempotency driver requires redis address")
		}
	default:
		return fmt.Errorf("unsupported idempotency driver %q", c.IdempotencyDriver)
	}

	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 || c.OutboxNotificationAttempts <= 0 {
		return fmt.Errorf("outbox batch size and max attempts must be positive")
	}
	if c.OutboxMaxPending < 0 {
		return fmt.Errorf("outbox max pending must be non-negative")
	}
	return nil
}
