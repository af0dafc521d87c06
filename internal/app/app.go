package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/wholesale/internal/api/httpapi"
	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/wholesale/internal/health"
	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/wholesale/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/wholesale/internal/service/grpc"
	"github.com/vladislavdragonenkov/wholesale/internal/service/idempotency"
	"github.com/vladislavdragonenkov/wholesale/internal/service/inventory"
	"github.com/vladislavdragonenkov/wholesale/internal/service/ledger"
	"github.com/vladislavdragonenkov/wholesale/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/wholesale/internal/service/outbox"
	"github.com/vladislavdragonenkov/wholesale/internal/version"
)

// components — собранный граф сервисов поверх runtimeDependencies.
type components struct {
	lifecycle    *lifecycle.Service
	ledger       *ledger.Service
	orderService *grpcsvc.OrderService
	api          *httpapi.Handler
	outbox       *outbox.Worker
	janitor      *idempotency.Janitor
}

func buildComponents(cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) *components {
	stock := inventory.NewLedger(deps.variants, logger.WithField("component", "inventory"))

	ledgerSvc := ledger.NewService(deps.transactions, deps.accounts, deps.orders,
		ledger.WithLogger(logger.WithField("component", "ledger")),
		ledger.WithOutbox(deps.outbox),
	)

	lifecycleOpts := []lifecycle.Option{
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")),
		lifecycle.WithOutbox(deps.outbox),
		lifecycle.WithTimeline(deps.timeline),
		lifecycle.WithStockAdvisor(stock),
		lifecycle.WithChargePoster(ledgerSvc),
		lifecycle.WithMetrics(metrics.NewLifecycleMetrics()),
		lifecycle.WithOrderLocker(deps.locker),
	}
	if cfg.KafkaDirectEvents && producer != nil {
		lifecycleOpts = append(lifecycleOpts, lifecycle.WithKafkaProducer(producer))
	}
	orders := lifecycle.NewService(deps.orders, deps.variants, stock,
		lifecycle.NewOutboxNotifier(deps.outbox), lifecycleOpts...)

	orderService := grpcsvc.NewOrderService(orders, ledgerSvc, deps.idempotency,
		logger.WithField("layer", "grpc"),
		grpcsvc.WithNegotiatedInvoiceDiscount(cfg.InvoiceUseNegotiatedDiscount),
	)

	api := httpapi.NewHandler(orders, ledgerSvc,
		httpapi.WithLogger(logger.WithField("layer", "http")),
		httpapi.WithNegotiatedInvoiceDiscount(cfg.InvoiceUseNegotiatedDiscount),
	)

	relay := outbox.NewWorker(deps.outbox,
		outboxRoutes(producer, logger.WithField("component", "outbox-log")),
		outbox.Config{
			PollInterval:         cfg.OutboxPollInterval,
			BatchSize:            cfg.OutboxBatchSize,
			LifecycleAttempts:    cfg.OutboxMaxAttempts,
			NotificationAttempts: cfg.OutboxNotificationAttempts,
			RetryBaseDelay:       cfg.OutboxRetryDelay,
		},
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(prometheus.DefaultRegisterer)),
	)

	janitor := idempotency.NewJanitor(deps.idempotency,
		idempotency.Config{
			Interval:  cfg.IdempotencyCleanupInterval,
			BatchSize: cfg.IdempotencyCleanupBatchSize,
		},
		idempotency.WithLogger(logger.WithField("component", "command-janitor")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(prometheus.DefaultRegisterer)),
	)

	return &components{
		lifecycle:    orders,
		ledger:       ledgerSvc,
		orderService: orderService,
		api:          api,
		outbox:       relay,
		janitor:      janitor,
	}
}

// newHealthHandler регистрирует проверки хранилищ и backlog outbox.
func newHealthHandler(cfg Config, deps *runtimeDependencies, producer *kafka.Producer) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	for name, ping := range deps.pings {
		handler.Register(name, ping)
	}
	if cfg.OutboxMaxPending > 0 {
		handler.RegisterOptional("outbox", outboxBacklogCheck(deps.outbox, cfg.OutboxMaxPending))
	}
	if producer == nil && len(cfg.kafkaBrokerList()) > 0 {
		handler.RegisterOptional("kafka", func(context.Context) error {
			return errors.New("kafka producer is not connected")
		})
	}
	return handler
}

func outboxBacklogCheck(repo domain.OutboxRepository, maxPending int) healthcheck.PingFunc {
	return func(context.Context) error {
		stats, err := repo.Stats()
		if err != nil {
			return err
		}
		if stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d (lifecycle %d, notifications %d)",
				stats.PendingCount, maxPending,
				stats.PendingByStream[domain.OutboxStreamLifecycle],
				stats.PendingByStream[domain.OutboxStreamNotifications])
		}
		return nil
	}
}

// newGRPCServer собирает gRPC сервер с метриками, health и reflection.
func newGRPCServer(orderService *grpcsvc.OrderService, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcsvc.RegisterOrderServiceServer(server, orderService)
	grpcMetrics.InitializeMetrics(server)
	reflection.Register(server)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return server, healthServer
}

// Run поднимает хранилища, воркеры, gRPC и HTTP и работает до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDependencies(deps, logger)

	if cfg.DemoCatalog {
		if err := seedDemoCatalog(deps.variants, deps.accounts, logger); err != nil {
			return err
		}
	}

	// Kafka опциональна: без неё outbox уходит в лог.
	producer, _ := initKafkaProducer(cfg.kafkaBrokerList(), cfg.KafkaClientID, logger)
	defer closeKafka(producer, logger)

	comps := buildComponents(cfg, deps, producer, logger)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		comps.outbox.Run(workerCtx)
	}()
	go func() {
		defer workers.Done()
		comps.janitor.Run(workerCtx)
	}()
	defer shutdownWorkers(stopWorkers, &workers, comps.outbox, logger)

	grpcServer, healthServer := newGRPCServer(comps.orderService, logger)
	httpSrv := startHTTPServer(ctx, cfg.MetricsAddr, logger, newHealthHandler(cfg, deps, producer), comps.api)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(httpSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{
			"addr":    lis.Addr().String(),
			"version": version.GetVersion(),
		}).Info("gRPC сервер слушает")
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.Shutdown()
		stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
		shutdownHTTP(httpSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(httpSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownWorkers останавливает воркеры и дописывает оставшийся outbox.
func shutdownWorkers(cancel context.CancelFunc, wg *sync.WaitGroup, worker *outbox.Worker, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if wg != nil {
		wg.Wait()
	}
	if worker == nil {
		return
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	if published := worker.Drain(drainCtx); published > 0 {
		logger.WithField("published", published).Info("outbox drained on shutdown")
	}
}
