package inventory

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/memory"
)

func newTestLedger(t *testing.T, stock map[string]int32) (*Ledger, domain.VariantRepository) {
	t.Helper()

	repo := memory.NewVariantRepository()
	for id, sets := range stock {
		require.NoError(t, repo.Create(domain.ProductVariant{
			ID:                 id,
			ProductID:          "kurta",
			PricePerPieceMinor: 100,
			PiecesPerSet:       6,
			Stock:              sets,
		}))
	}
	return NewLedger(repo, log.NewEntry(log.New())), repo
}

func TestLedger_ReserveInsufficientStockLeavesStock(t *testing.T) {
	ledger, _ := newTestLedger(t, map[string]int32{"v-1": 2})

	err := ledger.Reserve(t.Context(), "v-1", 3)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, int32(1), stockErr.Shortfall())

	available, err := ledger.Available("v-1")
	require.NoError(t, err)
	require.Equal(t, int32(2), available)
}

func TestLedger_ReserveRelease(t *testing.T) {
	ledger, _ := newTestLedger(t, map[string]int32{"v-1": 10})

	require.NoError(t, ledger.Reserve(t.Context(), "v-1", 4))
	require.NoError(t, ledger.Reserve(t.Context(), "v-1", 0))
	require.NoError(t, ledger.Release(t.Context(), "v-1", 1))

	available, err := ledger.Available("v-1")
	require.NoError(t, err)
	require.Equal(t, int32(7), available)

	require.ErrorIs(t, ledger.Reserve(t.Context(), "v-1", -1), domain.ErrValidation)
	require.ErrorIs(t, ledger.Release(t.Context(), "v-1", -1), domain.ErrValidation)
	require.ErrorIs(t, ledger.Reserve(t.Context(), "missing", 1), domain.ErrVariantNotFound)
}

func TestLedger_UnitsAreSets(t *testing.T) {
	// 2 сета по 6 штук: запрос 6 должен трактоваться как 6 сетов, а не 1 сет.
	ledger, _ := newTestLedger(t, map[string]int32{"v-1": 2})

	require.ErrorIs(t, ledger.Reserve(t.Context(), "v-1", 6), domain.ErrInsufficientStock)
	require.NoError(t, ledger.Reserve(t.Context(), "v-1", 2))
}

func TestLedger_ReserveOrderAllOrNothing(t *testing.T) {
	ledger, _ := newTestLedger(t, map[string]int32{"v-a": 5, "v-b": 1})

	items := []domain.OrderItem{
		{VariantID: "v-a", QuantitySets: 3},
		{VariantID: "v-b", QuantitySets: 2},
	}
	err := ledger.ReserveOrder(t.Context(), "order-1", items)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	a, _ := ledger.Available("v-a")
	b, _ := ledger.Available("v-b")
	require.Equal(t, int32(5), a, "partial reservation must be rolled back")
	require.Equal(t, int32(1), b)
}

func TestLedger_ReserveOrderAggregatesLinesOfSameVariant(t *testing.T) {
	ledger, _ := newTestLedger(t, map[string]int32{"v-a": 4})

	items := []domain.OrderItem{
		{VariantID: "v-a", QuantitySets: 2},
		{VariantID: "v-a", QuantitySets: 3},
	}
	require.ErrorIs(t, ledger.ReserveOrder(t.Context(), "order-1", items), domain.ErrInsufficientStock)

	items[1].QuantitySets = 2
	require.NoError(t, ledger.ReserveOrder(t.Context(), "order-1", items))
	a, _ := ledger.Available("v-a")
	require.Zero(t, a)

	require.NoError(t, ledger.ReleaseOrder(t.Context(), "order-1", items))
	a, _ = ledger.Available("v-a")
	require.Equal(t, int32(4), a)
}

// failingVariants отказывает в возврате сетов для одного варианта.
type failingVariants struct {
	domain.VariantRepository
	failReleaseOf string
}

func (r *failingVariants) AdjustStock(id string, delta int32) (domain.ProductVariant, error) {
	if delta > 0 && id == r.failReleaseOf {
		return domain.ProductVariant{}, errors.New("store unreachable")
	}
	return r.VariantRepository.AdjustStock(id, delta)
}

func TestLedger_ReleaseOrderAllOrNothing(t *testing.T) {
	_, repo := newTestLedger(t, map[string]int32{"v-a": 5, "v-b": 5})
	variants := &failingVariants{VariantRepository: repo}
	ledger := NewLedger(variants, log.NewEntry(log.New()))

	items := []domain.OrderItem{
		{VariantID: "v-a", QuantitySets: 5},
		{VariantID: "v-b", QuantitySets: 5},
	}
	require.NoError(t, ledger.ReserveOrder(t.Context(), "order-1", items))

	variants.failReleaseOf = "v-b"
	err := ledger.ReleaseOrder(t.Context(), "order-1", items)
	require.ErrorContains(t, err, "variant v-b")
	require.ErrorContains(t, err, "store unreachable")

	a, _ := ledger.Available("v-a")
	b, _ := ledger.Available("v-b")
	require.Zero(t, a, "released variant must be reserved again")
	require.Zero(t, b)

	variants.failReleaseOf = ""
	require.NoError(t, ledger.ReleaseOrder(t.Context(), "order-1", items))
	a, _ = ledger.Available("v-a")
	b, _ = ledger.Available("v-b")
	require.Equal(t, int32(5), a)
	require.Equal(t, int32(5), b)
}

func TestLedger_ReserveOrderRejectsOverflowingDemand(t *testing.T) {
	ledger, _ := newTestLedger(t, map[string]int32{"v-a": 10})

	items := []domain.OrderItem{
		{VariantID: "v-a", QuantitySets: math.MaxInt32 - 1},
		{VariantID: "v-a", QuantitySets: 5},
	}
	err := ledger.ReserveOrder(t.Context(), "order-1", items)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = ledger.CheckAvailability(items)
	require.ErrorIs(t, err, domain.ErrValidation)

	a, _ := ledger.Available("v-a")
	require.Equal(t, int32(10), a)
}

func TestLedger_CancelledContextReservesNothing(t *testing.T) {
	ledger, _ := newTestLedger(t, map[string]int32{"v-a": 10})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := ledger.ReserveOrder(ctx, "order-1", []domain.OrderItem{{VariantID: "v-a", QuantitySets: 3}})
	require.ErrorIs(t, err, context.Canceled)

	a, _ := ledger.Available("v-a")
	require.Equal(t, int32(10), a)
}

func TestLedger_CheckAvailability(t *testing.T) {
	ledger, _ := newTestLedger(t, map[string]int32{"v-a": 4, "v-b": 1})

	shortages, err := ledger.CheckAvailability([]domain.OrderItem{
		{VariantID: "v-a", QuantitySets: 2},
		{VariantID: "v-b", QuantitySets: 3},
	})
	require.NoError(t, err)
	require.Equal(t, []Shortage{{VariantID: "v-b", Requested: 3, Available: 1}}, shortages)

	a, _ := ledger.Available("v-a")
	require.Equal(t, int32(4), a, "availability check must not reserve")
}

func TestLedger_ConcurrentReservationsNeverOversell(t *testing.T) {
	const initial = int32(25)
	ledger, _ := newTestLedger(t, map[string]int32{"v-hot": initial})

	var (
		wg       sync.WaitGroup
		reserved atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(qty int32) {
			defer wg.Done()
			err := ledger.Reserve(t.Context(), "v-hot", qty)
			switch {
			case err == nil:
				reserved.Add(qty)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int32(i%3 + 1))
	}
	wg.Wait()

	available, err := ledger.Available("v-hot")
	require.NoError(t, err)
	require.GreaterOrEqual(t, available, int32(0))
	require.Equal(t, initial-reserved.Load(), available)
	require.Positive(t, rejected.Load())
}

func TestLedger_ConcurrentOrdersCompeteForSameVariant(t *testing.T) {
	ledger, _ := newTestLedger(t, map[string]int32{"v-a": 5, "v-b": 5})

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	items := []domain.OrderItem{{VariantID: "v-a", QuantitySets: 3}, {VariantID: "v-b", QuantitySets: 1}}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.ReserveOrder(t.Context(), "order", items); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), succeeded.Load())
	a, _ := ledger.Available("v-a")
	b, _ := ledger.Available("v-b")
	require.Equal(t, int32(2), a)
	require.Equal(t, int32(4), b)
}

func TestLedger_StockConservation(t *testing.T) {
	const initial = int32(30)
	ledger, _ := newTestLedger(t, map[string]int32{"v-1": initial})
	rng := rand.New(rand.NewSource(42))

	var reserved, released int32
	for i := 0; i < 500; i++ {
		qty := int32(rng.Intn(5))
		if rng.Intn(2) == 0 {
			if err := ledger.Reserve(t.Context(), "v-1", qty); err == nil {
				reserved += qty
			} else {
				require.ErrorIs(t, err, domain.ErrInsufficientStock)
			}
		} else if reserved-released >= qty {
			require.NoError(t, ledger.Release(t.Context(), "v-1", qty))
			released += qty
		}

		available, err := ledger.Available("v-1")
		require.NoError(t, err)
		require.GreaterOrEqual(t, available, int32(0))
		require.Equal(t, initial-reserved+released, available)
	}
}
