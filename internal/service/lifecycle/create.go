package lifecycle

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/wholesale/internal/pricing"
	"github.com/vladislavdragonenkov/wholesale/internal/service/inventory"
)

// CreateLine — запрошенная позиция: вариант и количество сетов.
type CreateLine struct {
	VariantID    string
	QuantitySets int32
}

// CreateOrderInput описывает новый заказ.
type CreateOrderInput struct {
	// OrderID можно задать снаружи, иначе генерируется.
	OrderID        string
	AccountID      string
	PaymentMethod  domain.PaymentMethod
	IntermediaryID string
	Lines          []CreateLine
}

// CreateResult возвращает созданный заказ и предупреждения о нехватке на складе.
type CreateResult struct {
	Order    domain.Order
	Warnings []inventory.Shortage
}

// CreateOrder фиксирует цены вариантов в снимке позиций и сохраняет заказ в PENDING.
// Склад на этом шаге не трогается; нехватка возвращается только как предупреждение.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return CreateResult{}, err
	}
	if in.AccountID == "" {
		return CreateResult{}, domain.NewValidationError("account_id", "is required")
	}
	if len(in.Lines) == 0 {
		return CreateResult{}, domain.NewValidationError("items", "must contain at least one line")
	}

	method := in.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodCredit
		if in.IntermediaryID != "" {
			method = domain.PaymentMethodPayNow
		}
	}

	now := s.now()
	items := make([]domain.OrderItem, 0, len(in.Lines))
	for i, line := range in.Lines {
		if line.VariantID == "" {
			return CreateResult{}, domain.NewValidationError(fmt.Sprintf("items[%d].variant_id", i), "is required")
		}
		if line.QuantitySets <= 0 {
			return CreateResult{}, domain.NewValidationError(fmt.Sprintf("items[%d].quantity_sets", i), "must be greater than zero")
		}
		variant, err := s.variants.Get(line.VariantID)
		if err != nil {
			return CreateResult{}, err
		}
		items = append(items, domain.OrderItem{
			ID:                 s.newID(),
			ProductID:          variant.ProductID,
			VariantID:          variant.ID,
			ProductName:        variant.ProductName,
			Color:              variant.Color,
			SizeRange:          variant.SizeRange,
			PricePerPieceMinor: variant.PricePerPieceMinor,
			PiecesPerSet:       variant.PiecesPerSet,
			QuantitySets:       line.QuantitySets,
			CreatedAt:          now,
		})
	}

	orderID := in.OrderID
	if orderID == "" {
		orderID = s.newID()
	}
	order := domain.Order{
		ID:             orderID,
		AccountID:      in.AccountID,
		Items:          items,
		Status:         domain.OrderStatusPending,
		PaymentMethod:  method,
		IntermediaryID: in.IntermediaryID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	total, factory, err := pricing.Totals(order)
	if err != nil {
		return CreateResult{}, err
	}
	order.TotalMinor = total
	order.FactoryAmountMinor = factory

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return CreateResult{}, errors.Join(errs...)
	}

	var warnings []inventory.Shortage
	if s.advisor != nil {
		shortages, err := s.advisor.CheckAvailability(order.Items)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("stock advisory check failed")
		}
		warnings = shortages
	}

	if err := s.orders.Create(order); err != nil {
		return CreateResult{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"account_id":  order.AccountID,
		"total_minor": order.TotalMinor,
		"warnings":    len(warnings),
	}).Info("order created")

	s.emitEvent(&order, orderEvent{
		outboxType: domain.OutboxEventOrderCreated,
		kind:       domain.TimelineOrderCreated,
		payload: map[string]interface{}{
			"status":      order.Status,
			"total_minor": order.TotalMinor,
		},
	})
	s.publishOrderEvent(kafka.EventTypeOrderCreated, &order, map[string]interface{}{
		"items_count": len(order.Items),
		"total_minor": order.TotalMinor,
	})

	return CreateResult{Order: order, Warnings: warnings}, nil
}
