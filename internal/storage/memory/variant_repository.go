package memory

import (
	"math"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// variantRepositoryInMemory хранит варианты; AdjustStock сериализуется мьютексом.
type variantRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.ProductVariant
}

// NewVariantRepository создаёт in-memory каталог вариантов.
func NewVariantRepository() domain.VariantRepository {
	return &variantRepositoryInMemory{items: make(map[string]domain.ProductVariant)}
}

func (r *variantRepositoryInMemory) Create(variant domain.ProductVariant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[variant.ID]; exists {
		return domain.ErrVariantExists
	}
	if variant.UpdatedAt.IsZero() {
		variant.UpdatedAt = time.Now().UTC()
	}
	r.items[variant.ID] = variant
	return nil
}

func (r *variantRepositoryInMemory) Get(id string) (domain.ProductVariant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	variant, ok := r.items[id]
	if !ok {
		return domain.ProductVariant{}, domain.ErrVariantNotFound
	}
	return variant, nil
}

// AdjustStock — условное изменение остатка: уменьшение проходит только при достаточном остатке.
func (r *variantRepositoryInMemory) AdjustStock(id string, delta int32) (domain.ProductVariant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	variant, ok := r.items[id]
	if !ok {
		return domain.ProductVariant{}, domain.ErrVariantNotFound
	}
	next := int64(variant.Stock) + int64(delta)
	switch {
	case next < 0:
		return domain.ProductVariant{}, &domain.InsufficientStockError{
			VariantID: id,
			Requested: -delta,
			Available: variant.Stock,
		}
	case next > math.MaxInt32:
		return domain.ProductVariant{}, domain.NewValidationError("stock", "exceeds the maximum number of sets")
	}

	variant.Stock = int32(next)
	variant.UpdatedAt = time.Now().UTC()
	r.items[id] = variant
	return variant, nil
}

var _ domain.VariantRepository = (*variantRepositoryInMemory)(nil)
