package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/inventory"
)

// gatedOrderRepository задерживает первый Save заказа gateID до закрытия release.
type gatedOrderRepository struct {
	domain.OrderRepository

	gateID  string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *gatedOrderRepository) Save(order domain.Order) error {
	if order.ID == r.gateID {
		hold := false
		r.once.Do(func() { hold = true })
		if hold {
			close(r.entered)
			<-r.release
		}
	}
	return r.OrderRepository.Save(order)
}

// signallingLocker сообщает о каждой попытке взять блокировку.
type signallingLocker struct {
	inner domain.OrderLocker
	calls chan string
}

func (l *signallingLocker) LockOrder(ctx context.Context, orderID string) (func(), error) {
	l.calls <- orderID
	return l.inner.LockOrder(ctx, orderID)
}

// releaseFailingVariants не даёт вернуть сеты на склад для failVariant.
type releaseFailingVariants struct {
	domain.VariantRepository

	mu          sync.Mutex
	failVariant string
}

func (r *releaseFailingVariants) AdjustStock(id string, delta int32) (domain.ProductVariant, error) {
	r.mu.Lock()
	fail := delta > 0 && id == r.failVariant
	r.mu.Unlock()
	if fail {
		return domain.ProductVariant{}, errors.New("stock store unavailable")
	}
	return r.VariantRepository.AdjustStock(id, delta)
}

func (r *releaseFailingVariants) failReleaseOf(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failVariant = id
}

func runParallel(n int, fn func() error) []error {
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func countSuccesses(t *testing.T, errs []error) int {
	t.Helper()
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, domain.ErrIllegalTransition)
	}
	return ok
}

func TestService_ConcurrentCancelReleasesOnce(t *testing.T) {
	f := newFixture(t, 10)
	ctx := t.Context()
	order := f.createOrder(t, 4)
	_, err := f.svc.Accept(ctx, order.ID, true)
	require.NoError(t, err)
	require.Equal(t, int32(6), f.stock(t))

	errs := runParallel(8, func() error {
		_, err := f.svc.Cancel(ctx, order.ID, "buyer request", true)
		return err
	})

	require.Equal(t, 1, countSuccesses(t, errs))
	require.Equal(t, int32(10), f.stock(t), "reserved sets return exactly once")

	stored, err := f.svc.Get(order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, stored.Status)
	require.False(t, stored.StockReserved)
}

func TestService_ConcurrentAcceptReservesOnce(t *testing.T) {
	f := newFixture(t, 10)
	ctx := t.Context()
	order := f.createOrder(t, 4)

	errs := runParallel(8, func() error {
		_, err := f.svc.Accept(ctx, order.ID, true)
		return err
	})

	require.Equal(t, 1, countSuccesses(t, errs))
	require.Equal(t, int32(6), f.stock(t))
	require.Len(t, f.notifier.all(), 1)
}

func TestService_ConcurrentAcceptAndCancelKeepStockConsistent(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, 10)
		ctx := t.Context()
		order := f.createOrder(t, 4)

		var accepted atomic.Bool
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Accept(ctx, order.ID, true); err == nil {
				accepted.Store(true)
			}
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.Cancel(ctx, order.ID, "buyer request", true)
		}()
		wg.Wait()

		// Отмена выигрывает в любом порядке: либо сразу из PENDING, либо после принятия с возвратом резерва.
		stored, err := f.svc.Get(order.ID)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusCancelled, stored.Status)
		require.False(t, stored.StockReserved)
		require.Equal(t, int32(10), f.stock(t), "accepted=%v", accepted.Load())
	}
}

func TestService_CancelWaitsForInFlightTransition(t *testing.T) {
	f := newFixture(t, 5)
	ctx := t.Context()
	orderA := f.createOrder(t, 5)
	orderB := f.createOrder(t, 5)
	_, err := f.svc.Accept(ctx, orderA.ID, true)
	require.NoError(t, err)
	require.Equal(t, int32(0), f.stock(t))

	gated := &gatedOrderRepository{
		OrderRepository: f.orders.OrderRepository,
		gateID:          orderA.ID,
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	locker := &signallingLocker{inner: newLocalOrderLocks(), calls: make(chan string, 16)}
	svc := NewService(gated, f.variants, f.inventory, f.notifier,
		WithLogger(f.svc.logger),
		WithOrderLocker(locker),
		WithConflictRetryDelay(0),
	)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Cancel(ctx, orderA.ID, "buyer request", true)
	}()
	require.Equal(t, orderA.ID, <-locker.calls)
	<-gated.entered // первая отмена вернула сеты и ждёт сохранения

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Cancel(ctx, orderA.ID, "duplicate click", true)
	}()
	require.Equal(t, orderA.ID, <-locker.calls)

	// Возвращённые сеты уже доступны другому заказу.
	_, err = svc.Accept(ctx, orderB.ID, true)
	require.NoError(t, err)
	require.Equal(t, orderB.ID, <-locker.calls)
	require.Equal(t, int32(0), f.stock(t))

	close(gated.release)
	wg.Wait()

	require.Equal(t, 1, countSuccesses(t, errs))
	require.Equal(t, int32(0), f.stock(t), "the second cancel must not release A's sets again")

	storedA, err := f.svc.Get(orderA.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, storedA.Status)
	storedB, err := f.svc.Get(orderB.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusAccepted, storedB.Status)
}

func TestService_CancelWithPartialReleaseFailureKeepsReservation(t *testing.T) {
	f := newFixture(t, 10)
	ctx := t.Context()
	require.NoError(t, f.variants.Create(domain.ProductVariant{
		ID:                 "variant-2",
		ProductID:          "product-1",
		ProductName:        "Cotton kurti",
		Color:              "maroon",
		SizeRange:          "M-XXL",
		PricePerPieceMinor: 100,
		PiecesPerSet:       6,
		Stock:              10,
	}))

	variants := &releaseFailingVariants{VariantRepository: f.variants}
	ledger := inventory.NewLedger(variants, f.svc.logger)
	svc := NewService(f.orders, variants, ledger, f.notifier,
		WithLogger(f.svc.logger),
		WithConflictRetryDelay(0),
	)

	res, err := svc.CreateOrder(ctx, CreateOrderInput{
		AccountID: "account-1",
		Lines: []CreateLine{
			{VariantID: "variant-1", QuantitySets: 4},
			{VariantID: "variant-2", QuantitySets: 3},
		},
	})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, res.Order.ID, true)
	require.NoError(t, err)

	variants.failReleaseOf("variant-2")
	_, err = svc.Cancel(ctx, res.Order.ID, "buyer request", true)
	require.Error(t, err)

	stored, err := svc.Get(res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusAccepted, stored.Status)
	require.True(t, stored.StockReserved)

	first, err := ledger.Available("variant-1")
	require.NoError(t, err)
	require.Equal(t, int32(6), first, "variant-1 stays reserved while the order is accepted")
	second, err := ledger.Available("variant-2")
	require.NoError(t, err)
	require.Equal(t, int32(7), second)

	variants.failReleaseOf("")
	_, err = svc.Cancel(ctx, res.Order.ID, "buyer request", true)
	require.NoError(t, err)
	first, _ = ledger.Available("variant-1")
	second, _ = ledger.Available("variant-2")
	require.Equal(t, int32(10), first)
	require.Equal(t, int32(10), second)
}
