package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/lifecycle"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.DemoCatalog = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestComponents_OrderFlowDrainsOutbox(t *testing.T) {
	logger := log.WithField("test", "components")
	cfg := DefaultConfig()

	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NoError(t, seedDemoCatalog(deps.variants, deps.accounts, logger))

	comps := buildComponents(cfg, deps, nil, logger)
	ctx := context.Background()

	created, err := comps.lifecycle.CreateOrder(ctx, lifecycle.CreateOrderInput{
		AccountID:     "demo-retailer",
		PaymentMethod: domain.PaymentMethodCredit,
		Lines:         []lifecycle.CreateLine{{VariantID: "demo-kurta-red", QuantitySets: 3}},
	})
	require.NoError(t, err)

	accepted, err := comps.lifecycle.Accept(ctx, created.Order.ID, true)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusAccepted, accepted.Status)
	require.True(t, accepted.StockReserved)

	variant, err := deps.variants.Get("demo-kurta-red")
	require.NoError(t, err)
	require.EqualValues(t, 10_000-3, variant.Stock)

	stats, err := deps.outbox.Stats()
	require.NoError(t, err)
	require.Positive(t, stats.PendingCount)

	require.Equal(t, stats.PendingCount, comps.outbox.ProcessOnce(ctx))

	stats, err = deps.outbox.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestNewHealthHandler_OutboxBacklogDegrades(t *testing.T) {
	logger := log.WithField("test", "health")
	cfg := DefaultConfig()
	cfg.OutboxMaxPending = 1

	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := deps.outbox.Enqueue(domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   "order-1",
			EventType:     domain.OutboxEventOrderCreated,
			Payload:       []byte(`{}`),
		})
		require.NoError(t, err)
	}

	report := newHealthHandler(cfg, deps, nil).Evaluate(context.Background())
	require.Equal(t, "degraded", string(report.Status))
	require.Contains(t, report.Checks["outbox"].Message, "exceeds 1")
}

func TestShutdownWorkers(t *testing.T) {
	logger := log.WithField("test", "shutdown")

	cancelled := false
	var wg sync.WaitGroup
	shutdownWorkers(func() { cancelled = true }, &wg, nil, logger)
	require.True(t, cancelled)

	shutdownWorkers(nil, nil, nil, logger)
}
