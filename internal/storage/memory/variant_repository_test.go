package memory_test

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/memory"
)

func TestVariantRepository_AdjustStock(t *testing.T) {
	repo := memory.NewVariantRepository()
	require.NoError(t, repo.Create(domain.ProductVariant{ID: "v-1", PiecesPerSet: 6, PricePerPieceMinor: 100, Stock: 2}))
	require.ErrorIs(t, repo.Create(domain.ProductVariant{ID: "v-1"}), domain.ErrVariantExists)

	_, err := repo.AdjustStock("v-1", -3)
	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, int32(1), stockErr.Shortfall())

	variant, err := repo.Get("v-1")
	require.NoError(t, err)
	require.Equal(t, int32(2), variant.Stock)

	variant, err = repo.AdjustStock("v-1", -2)
	require.NoError(t, err)
	require.Zero(t, variant.Stock)

	variant, err = repo.AdjustStock("v-1", 5)
	require.NoError(t, err)
	require.Equal(t, int32(5), variant.Stock)

	_, err = repo.AdjustStock("missing", 1)
	require.ErrorIs(t, err, domain.ErrVariantNotFound)
}

func TestVariantRepository_AdjustStockRejectsOverflow(t *testing.T) {
	repo := memory.NewVariantRepository()
	require.NoError(t, repo.Create(domain.ProductVariant{ID: "v-1", PiecesPerSet: 6, Stock: math.MaxInt32 - 1}))

	_, err := repo.AdjustStock("v-1", 2)
	require.ErrorIs(t, err, domain.ErrValidation)

	variant, err := repo.Get("v-1")
	require.NoError(t, err)
	require.Equal(t, int32(math.MaxInt32-1), variant.Stock)

	variant, err = repo.AdjustStock("v-1", 1)
	require.NoError(t, err)
	require.Equal(t, int32(math.MaxInt32), variant.Stock)
}

func TestVariantRepository_ConcurrentDecrementNeverOversells(t *testing.T) {
	repo := memory.NewVariantRepository()
	require.NoError(t, repo.Create(domain.ProductVariant{ID: "v-hot", PiecesPerSet: 6, Stock: 10}))

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.AdjustStock("v-hot", -1); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	variant, err := repo.Get("v-hot")
	require.NoError(t, err)
	require.Equal(t, int32(10), succeeded.Load())
	require.Zero(t, variant.Stock)
}
