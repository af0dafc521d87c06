package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/negotiation"
)

// TransitionInput несёт подтверждения и документы, нужные для перехода.
type TransitionInput struct {
	// Confirmed — явное подтверждение (условия оплаты, доставка, отмена).
	Confirmed bool
	Documents domain.Documents
	Transport domain.Transport
	Reason    string
	Actor     string
}

// Transition переводит заказ в целевой статус. Переходы одного заказа выполняются
// под его блокировкой: складской эффект и сохранение видят один и тот же статус.
// Конфликт версий повторяется один раз с перечитанным заказом, затем возвращается вызывающему.
func (s *Service) Transition(ctx context.Context, orderID string, target domain.OrderStatus, in TransitionInput) (domain.Order, error) {
	start := time.Now()
	var (
		from  domain.OrderStatus
		order domain.Order
	)

	err := s.withOrderLock(ctx, orderID, func() error {
		var err error
		order, err = s.retryOnConflict(ctx, "transition", orderID, func() (domain.Order, error) {
			current, err := s.orders.Get(orderID)
			if err != nil {
				return domain.Order{}, err
			}
			from = current.Status
			return s.applyTransition(ctx, current, target, in)
		})
		if err != nil {
			return err
		}

		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"from":     from,
			"to":       order.Status,
			"actor":    in.Actor,
			"version":  order.Version,
		}).Info("order status changed")
		s.afterCommit(from, order, in.Reason)
		return nil
	})

	s.recordTransition(from, target, err, time.Since(start))
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"from":     from,
			"to":       target,
			"actor":    in.Actor,
		}).Warn("transition rejected")
		return domain.Order{}, err
	}
	return order, nil
}

// Accept подтверждает условия оплаты и резервирует сеты.
func (s *Service) Accept(ctx context.Context, orderID string, confirmed bool) (domain.Order, error) {
	return s.Transition(ctx, orderID, domain.OrderStatusAccepted, TransitionInput{Confirmed: confirmed})
}

// MarkReady прикладывает документы; без счёта переход невозможен.
func (s *Service) MarkReady(ctx context.Context, orderID string, docs domain.Documents) (domain.Order, error) {
	return s.Transition(ctx, orderID, domain.OrderStatusReady, TransitionInput{Documents: docs})
}

// Dispatch фиксирует перевозчика и номер GR.
func (s *Service) Dispatch(ctx context.Context, orderID string, transport domain.Transport, docs domain.Documents) (domain.Order, error) {
	return s.Transition(ctx, orderID, domain.OrderStatusDispatched, TransitionInput{Transport: transport, Documents: docs})
}

// Deliver закрывает заказ по подтверждению доставки.
func (s *Service) Deliver(ctx context.Context, orderID string, confirmed bool) (domain.Order, error) {
	return s.Transition(ctx, orderID, domain.OrderStatusDelivered, TransitionInput{Confirmed: confirmed})
}

// Cancel отменяет заказ до отгрузки и возвращает резерв на склад.
func (s *Service) Cancel(ctx context.Context, orderID, reason string, confirmed bool) (domain.Order, error) {
	return s.Transition(ctx, orderID, domain.OrderStatusCancelled, TransitionInput{Confirmed: confirmed, Reason: reason})
}

// applyTransition проверяет переход, выполняет складской эффект и сохраняет заказ.
// Если сохранить не удалось, складской эффект компенсируется.
func (s *Service) applyTransition(ctx context.Context, current domain.Order, target domain.OrderStatus, in TransitionInput) (domain.Order, error) {
	if !target.Valid() {
		return domain.Order{}, domain.NewValidationError("status", "is unknown")
	}
	if !current.Status.CanTransitionTo(target) {
		return domain.Order{}, &domain.IllegalTransitionError{From: current.Status, To: target}
	}

	next := current.Clone()
	if err := s.checkPreconditions(&next, target, in); err != nil {
		return domain.Order{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	var (
		reserved bool
		released bool
	)
	switch target {
	case domain.OrderStatusAccepted:
		if err := s.inventory.ReserveOrder(ctx, next.ID, next.Items); err != nil {
			return domain.Order{}, err
		}
		reserved = true
		next.StockReserved = true
	case domain.OrderStatusCancelled:
		if current.StockReserved {
			if err := s.inventory.ReleaseOrder(ctx, next.ID, next.Items); err != nil {
				return domain.Order{}, err
			}
			released = true
			next.StockReserved = false
		}
	}

	next.Status = target
	next.UpdatedAt = s.now()
	prevVersion := next.Version

	if err := s.orders.Save(next); err != nil {
		s.compensate(ctx, next, reserved, released)
		return domain.Order{}, err
	}

	next.Version = prevVersion + 1
	return next, nil
}

// checkPreconditions проверяет обязательные подтверждения и документы и
// переносит данные из input в заказ.
func (s *Service) checkPreconditions(next *domain.Order, target domain.OrderStatus, in TransitionInput) error {
	from := next.Status
	missing := func(requirement string) error {
		return &domain.PreconditionError{From: from, To: target, Requirement: requirement}
	}

	switch target {
	case domain.OrderStatusAccepted:
		if !in.Confirmed {
			return missing("confirmation of payment terms")
		}
		if err := negotiation.RequireDisclosure(next, target); err != nil {
			return err
		}
	case domain.OrderStatusReady:
		docs := next.Documents.Merge(in.Documents)
		if strings.TrimSpace(docs.InvoiceURL) == "" {
			return missing("invoice document")
		}
		next.Documents = docs
	case domain.OrderStatusDispatched:
		if strings.TrimSpace(in.Transport.GRNumber) == "" {
			return missing("transport GR number")
		}
		next.Transport = in.Transport
		next.Documents = next.Documents.Merge(in.Documents)
	case domain.OrderStatusDelivered:
		if !in.Confirmed {
			return missing("delivery confirmation")
		}
	case domain.OrderStatusCancelled:
		if !in.Confirmed {
			return missing("cancellation confirmation")
		}
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			return missing("cancellation reason")
		}
		next.CancelReason = reason
	}
	return nil
}

// compensate откатывает складской эффект перехода, который не удалось сохранить.
// Вызывается под блокировкой заказа, поэтому откатывается ровно свой эффект.
func (s *Service) compensate(ctx context.Context, order domain.Order, reserved, released bool) {
	ctx = context.WithoutCancel(ctx)
	entry := s.logger.WithField("order_id", order.ID)
	if reserved {
		if err := s.inventory.ReleaseOrder(ctx, order.ID, order.Items); err != nil {
			entry.WithError(err).Error("release after failed save failed")
		}
	}
	if released {
		if err := s.inventory.ReserveOrder(ctx, order.ID, order.Items); err != nil {
			entry.WithError(err).Error("re-reserve after failed save failed")
		}
	}
}

// retryOnConflict выполняет операцию и при конфликте версий повторяет её один раз.
func (s *Service) retryOnConflict(ctx context.Context, operation, orderID string, fn func() (domain.Order, error)) (domain.Order, error) {
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Order{}, err
		}

		order, err := fn()
		if err == nil {
			return order, nil
		}
		lastErr = err
		if !domain.IsVersionConflict(err) || attempt == maxAttempts {
			break
		}

		if s.metrics != nil {
			s.metrics.RecordConflictRetry()
		}
		s.logger.WithFields(log.Fields{
			"order_id":  orderID,
			"operation": operation,
			"attempt":   attempt,
		}).Warn("version conflict detected, retrying")

		if s.retryDelay > 0 {
			timer := time.NewTimer(s.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return domain.Order{}, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return domain.Order{}, lastErr
}

func (s *Service) recordTransition(from, to domain.OrderStatus, err error, d time.Duration) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case domain.IsVersionConflict(err):
		result = "conflict"
		s.metrics.RecordRejection(rejectionKind(err))
	case domain.IsBusinessError(err):
		result = "rejected"
		s.metrics.RecordRejection(rejectionKind(err))
	default:
		result = "error"
	}
	s.metrics.RecordTransition(string(from), string(to), result, d)
}

func rejectionKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrPreconditionNotMet):
		return "precondition"
	case errors.Is(err, domain.ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, domain.ErrDiscountRejected):
		return "discount"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "other"
	}
}
