package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/wholesale/internal/health"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/memory"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/postgres"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/redisstore"
)

// runtimeDependencies — репозитории выбранного драйвера и пробы их доступности.
type runtimeDependencies struct {
	orders       domain.OrderRepository
	variants     domain.VariantRepository
	accounts     domain.AccountRepository
	transactions domain.TransactionRepository
	timeline     domain.TimelineRepository
	outbox       domain.OutboxRepository
	idempotency  domain.IdempotencyRepository
	// locker — nil для memory: сервис использует блокировки внутри процесса.
	locker domain.OrderLocker

	// pings — критичные проверки для /healthz и /readyz.
	pings    map[string]healthcheck.PingFunc
	closeFns []func() error
}

// Close освобождает соединения в обратном порядке открытия.
func (d *runtimeDependencies) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closeFns) - 1; i >= 0; i-- {
		if err := d.closeFns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closeFns = nil
	return errors.Join(errs...)
}

// initRuntimeDependencies открывает хранилища по конфигурации.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps := &runtimeDependencies{pings: make(map[string]healthcheck.PingFunc)}
	var store *postgres.Store

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps.orders = memory.NewOrderRepository()
		deps.variants = memory.NewVariantRepository()
		deps.accounts = memory.NewAccountRepository()
		deps.transactions = memory.NewTransactionRepository()
		deps.timeline = memory.NewTimelineRepository()
		deps.outbox = memory.NewOutboxRepository()
		logger.Info("storage: in-memory")

	case StorageDriverPostgres:
		var err error
		store, err = postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		deps.closeFns = append(deps.closeFns, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = deps.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			state, err := store.MigrationStatus(ctx)
			if err != nil {
				_ = deps.Close()
				return nil, fmt.Errorf("migration status: %w", err)
			}
			logger.WithField("schema_version", state.Version).Info("postgres migrations applied")
		}

		deps.orders = postgres.NewOrderRepository(store)
		deps.variants = postgres.NewVariantRepository(store)
		deps.accounts = postgres.NewAccountRepository(store)
		deps.transactions = postgres.NewTransactionRepository(store)
		deps.timeline = postgres.NewTimelineRepository(store)
		deps.outbox = postgres.NewOutboxRepository(store)
		deps.locker = postgres.NewOrderLocker(store, logger.WithField("component", "order-locker"))
		deps.pings["postgres"] = store.Ping
		logger.Info("storage: postgres")
	}

	switch cfg.idempotencyDriver() {
	case IdempotencyDriverMemory:
		deps.idempotency = memory.NewIdempotencyRepository()
	case IdempotencyDriverPostgres:
		deps.idempotency = postgres.NewIdempotencyRepository(store)
	case IdempotencyDriverRedis:
		client, err := redisstore.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		deps.closeFns = append(deps.closeFns, client.Close)
		repo := redisstore.NewIdempotencyRepository(client)
		deps.idempotency = repo
		deps.pings["redis"] = repo.Ping
		logger.WithField("addr", cfg.RedisAddr).Info("idempotency keys: redis")
	}

	return deps, nil
}

// closeDependencies закрывает соединения и логирует ошибку закрытия.
func closeDependencies(deps *runtimeDependencies, logger *log.Entry) {
	if err := deps.Close(); err != nil {
		logger.WithError(err).Warn("failed to close storage connections")
	}
}
