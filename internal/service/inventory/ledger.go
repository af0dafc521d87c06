package inventory

import (
	"context"
	"fmt"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// Ledger ведёт остатки вариантов в сетах. Остатки меняются только через Reserve/Release.
type Ledger struct {
	variants domain.VariantRepository
	logger   *log.Entry
}

// NewLedger создаёт складской леджер поверх репозитория вариантов.
func NewLedger(variants domain.VariantRepository, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "inventory")
	}
	return &Ledger{variants: variants, logger: logger}
}

// Reserve списывает quantitySets сетов, если их хватает. Иначе *domain.InsufficientStockError, остаток не меняется.
func (l *Ledger) Reserve(ctx context.Context, variantID string, quantitySets int32) error {
	if quantitySets < 0 {
		return domain.NewValidationError("quantity_sets", "must be non-negative")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if quantitySets == 0 {
		return nil
	}

	variant, err := l.variants.AdjustStock(variantID, -quantitySets)
	if err != nil {
		return err
	}

	l.logger.WithFields(log.Fields{
		"variant_id": variantID,
		"sets":       quantitySets,
		"stock":      variant.Stock,
	}).Debug("stock reserved")
	return nil
}

// Release возвращает сеты на склад.
func (l *Ledger) Release(ctx context.Context, variantID string, quantitySets int32) error {
	if quantitySets < 0 {
		return domain.NewValidationError("quantity_sets", "must be non-negative")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if quantitySets == 0 {
		return nil
	}

	variant, err := l.variants.AdjustStock(variantID, quantitySets)
	if err != nil {
		return err
	}

	l.logger.WithFields(log.Fields{
		"variant_id": variantID,
		"sets":       quantitySets,
		"stock":      variant.Stock,
	}).Debug("stock released")
	return nil
}

// Available возвращает текущий остаток варианта.
func (l *Ledger) Available(variantID string) (int32, error) {
	variant, err := l.variants.Get(variantID)
	if err != nil {
		return 0, err
	}
	return variant.Stock, nil
}

// ReserveOrder резервирует все позиции заказа или ни одной.
func (l *Ledger) ReserveOrder(ctx context.Context, orderID string, items []domain.OrderItem) error {
	demand, err := aggregate(items)
	if err != nil {
		return err
	}

	if err := l.applyAll(ctx, orderID, demand, l.Reserve, l.Release); err != nil {
		return err
	}
	l.logger.WithFields(log.Fields{
		"order_id": orderID,
		"variants": len(demand),
	}).Info("order stock reserved")
	return nil
}

// ReleaseOrder возвращает на склад все позиции заказа или ни одной: если один
// вариант вернуть не удалось, уже возвращённые резервируются обратно.
func (l *Ledger) ReleaseOrder(ctx context.Context, orderID string, items []domain.OrderItem) error {
	demand, err := aggregate(items)
	if err != nil {
		return err
	}

	if err := l.applyAll(ctx, orderID, demand, l.Release, l.Reserve); err != nil {
		return err
	}
	l.logger.WithField("order_id", orderID).Info("order stock released")
	return nil
}

type stockStep func(ctx context.Context, variantID string, quantitySets int32) error

// applyAll выполняет step по всем вариантам; при ошибке уже сделанные шаги
// откатываются через undo в обратном порядке.
func (l *Ledger) applyAll(ctx context.Context, orderID string, demand []variantDemand, step, undo stockStep) error {
	done := make([]variantDemand, 0, len(demand))
	for _, d := range demand {
		if err := step(ctx, d.variantID, d.sets); err != nil {
			l.rollback(ctx, orderID, done, undo)
			return fmt.Errorf("variant %s: %w", d.variantID, err)
		}
		done = append(done, d)
	}
	return nil
}

// rollback не зависит от отмены ctx вызывающего: компенсация доводится до конца.
func (l *Ledger) rollback(ctx context.Context, orderID string, done []variantDemand, undo stockStep) {
	ctx = context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		d := done[i]
		if err := undo(ctx, d.variantID, d.sets); err != nil {
			l.logger.WithError(err).WithFields(log.Fields{
				"order_id":   orderID,
				"variant_id": d.variantID,
				"sets":       d.sets,
			}).Error("stock compensation failed")
		}
	}
}

// Shortage — позиция, которой не хватает на складе.
type Shortage struct {
	VariantID string
	Requested int32
	Available int32
}

// CheckAvailability сравнивает заказ с текущими остатками, ничего не резервируя.
func (l *Ledger) CheckAvailability(items []domain.OrderItem) ([]Shortage, error) {
	demand, err := aggregate(items)
	if err != nil {
		return nil, err
	}

	var shortages []Shortage
	for _, d := range demand {
		available, err := l.Available(d.variantID)
		if err != nil {
			return nil, err
		}
		if available < d.sets {
			shortages = append(shortages, Shortage{VariantID: d.variantID, Requested: d.sets, Available: available})
		}
	}
	return shortages, nil
}

type variantDemand struct {
	variantID string
	sets      int32
}

// aggregate суммирует сеты по варианту; порядок по ID фиксирует порядок блокировок.
// Сумма по варианту должна помещаться в int32, как и сам остаток.
func aggregate(items []domain.OrderItem) ([]variantDemand, error) {
	totals := make(map[string]int64, len(items))
	for _, item := range items {
		if item.QuantitySets < 0 {
			return nil, domain.NewValidationError("quantity_sets", "must be non-negative")
		}
		totals[item.VariantID] += int64(item.QuantitySets)
		if totals[item.VariantID] > math.MaxInt32 {
			return nil, domain.NewValidationError("quantity_sets", fmt.Sprintf("total for variant %s exceeds %d sets", item.VariantID, int64(math.MaxInt32)))
		}
	}

	result := make([]variantDemand, 0, len(totals))
	for id, sets := range totals {
		result = append(result, variantDemand{variantID: id, sets: int32(sets)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].variantID < result[j].variantID })
	return result, nil
}

var _ domain.InventoryService = (*Ledger)(nil)
