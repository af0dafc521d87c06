package lifecycle

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/wholesale/internal/pricing"
	"github.com/vladislavdragonenkov/wholesale/internal/service/negotiation"
)

// ApplyDiscount применяет согласованную скидку к заказу в PENDING и пересчитывает суммы.
func (s *Service) ApplyDiscount(ctx context.Context, orderID string, offer domain.DiscountOffer) (domain.Order, domain.AppliedDiscount, error) {
	var (
		applied domain.AppliedDiscount
		order   domain.Order
	)

	err := s.withOrderLock(ctx, orderID, func() error {
		var err error
		order, err = s.retryOnConflict(ctx, "apply_discount", orderID, func() (domain.Order, error) {
			current, err := s.orders.Get(orderID)
			if err != nil {
				return domain.Order{}, err
			}
			next := current.Clone()
			applied, err = negotiation.ProposeDiscount(&next, offer)
			if err != nil {
				return domain.Order{}, err
			}
			if !applied.Changed {
				return current, nil
			}

			total, factory, err := pricing.Totals(next)
			if err != nil {
				return domain.Order{}, err
			}
			next.TotalMinor = total
			next.FactoryAmountMinor = factory
			return s.save(next)
		})
		return err
	})
	if err != nil {
		if s.metrics != nil && domain.IsBusinessError(err) {
			s.metrics.RecordRejection(rejectionKind(err))
		}
		return domain.Order{}, domain.AppliedDiscount{}, err
	}

	if applied.Changed {
		s.logger.WithFields(log.Fields{
			"order_id":       order.ID,
			"discount_pct":   order.DiscountPercent,
			"payment_method": order.PaymentMethod,
			"total_minor":    order.TotalMinor,
		}).Info("discount applied")
		s.emitEvent(&order, orderEvent{
			outboxType: domain.OutboxEventOrderUpdated,
			kind:       domain.TimelineDiscountApplied,
			reason:     applied.Disclosure,
			payload: map[string]interface{}{
				"discount_pct":   order.DiscountPercent,
				"payment_method": order.PaymentMethod,
			},
		})
		s.publishOrderEvent(kafka.EventTypeDiscountApplied, &order, map[string]interface{}{
			"discount_pct": order.DiscountPercent,
			"total_minor":  order.TotalMinor,
		})
	}
	return order, applied, nil
}

// AcknowledgeDisclosure отмечает, что контрагент увидел условия скидки.
func (s *Service) AcknowledgeDisclosure(ctx context.Context, orderID string) (domain.Order, error) {
	var (
		changed bool
		order   domain.Order
	)
	err := s.withOrderLock(ctx, orderID, func() error {
		var err error
		order, err = s.retryOnConflict(ctx, "acknowledge_disclosure", orderID, func() (domain.Order, error) {
			current, err := s.orders.Get(orderID)
			if err != nil {
				return domain.Order{}, err
			}
			next := current.Clone()
			changed, err = negotiation.AcknowledgeDisclosure(&next)
			if err != nil {
				return domain.Order{}, err
			}
			if !changed {
				return current, nil
			}
			return s.save(next)
		})
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	if changed {
		s.emitEvent(&order, orderEvent{
			outboxType: domain.OutboxEventOrderUpdated,
			kind:       domain.TimelineDisclosureAcknowledged,
		})
	}
	return order, nil
}

// AmendDocuments заменяет ссылки на документы после принятия и до доставки.
// Статус не меняется, уведомление не отправляется.
func (s *Service) AmendDocuments(ctx context.Context, orderID string, docs domain.Documents) (domain.Order, error) {
	if docs.Empty() {
		return domain.Order{}, domain.NewValidationError("documents", "at least one document link is required")
	}

	var order domain.Order
	err := s.withOrderLock(ctx, orderID, func() error {
		var err error
		order, err = s.retryOnConflict(ctx, "amend_documents", orderID, func() (domain.Order, error) {
			current, err := s.orders.Get(orderID)
			if err != nil {
				return domain.Order{}, err
			}
			if !current.Status.AllowsDocumentAmend() {
				return domain.Order{}, &domain.PreconditionError{
					From:        current.Status,
					To:          current.Status,
					Requirement: "accepted, ready or dispatched status",
				}
			}
			next := current.Clone()
			next.Documents = next.Documents.Merge(docs)
			return s.save(next)
		})
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.emitEvent(&order, orderEvent{
		outboxType: domain.OutboxEventOrderUpdated,
		kind:       domain.TimelineDocumentsAmended,
		payload: map[string]interface{}{
			"invoice_url":        order.Documents.InvoiceURL,
			"eway_bill_url":      order.Documents.EWayBillURL,
			"transport_slip_url": order.Documents.TransportSlipURL,
		},
	})
	s.publishOrderEvent(kafka.EventTypeDocumentsAmended, &order, nil)
	return order, nil
}

// save сохраняет заказ без смены статуса и возвращает его с новой версией.
func (s *Service) save(next domain.Order) (domain.Order, error) {
	next.UpdatedAt = s.now()
	prevVersion := next.Version
	if err := s.orders.Save(next); err != nil {
		return domain.Order{}, err
	}
	next.Version = prevVersion + 1
	return next, nil
}
