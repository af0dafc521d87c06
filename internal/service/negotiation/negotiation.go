// Package negotiation применяет согласованную скидку к заказу.
//
// Потолок скидки проверяется до всего остального: источник предложения
// (менеджер или ассистент) не важен. Принятая скидка переключает заказ
// на немедленную оплату.
package negotiation

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

var validate = validator.New()

// Disclosure возвращает текст, который контрагент должен увидеть до принятия заказа.
func Disclosure(percent int) string {
	if percent <= 0 {
		return ""
	}
	return fmt.Sprintf("A %d%% discount has been applied to this order. Discounted orders must be paid immediately; credit settlement is not available.", percent)
}

// ProposeDiscount проверяет предложение и применяет его к заказу на месте.
// Повтор той же скидки ничего не меняет.
func ProposeDiscount(order *domain.Order, offer domain.DiscountOffer) (domain.AppliedDiscount, error) {
	if offer.Percent > domain.MaxDiscountPercent {
		return domain.AppliedDiscount{}, &domain.DiscountRejectedError{Percent: offer.Percent, Max: domain.MaxDiscountPercent}
	}
	if err := validate.Struct(offer); err != nil {
		return domain.AppliedDiscount{}, domain.NewValidationError("offer", err.Error())
	}
	if !offer.Applied {
		return domain.AppliedDiscount{}, domain.NewValidationError("offer.applied", "must be confirmed by the counterparty")
	}
	if order.Status != domain.OrderStatusPending {
		return domain.AppliedDiscount{}, &domain.PreconditionError{
			From:        order.Status,
			To:          order.Status,
			Requirement: "pending status",
		}
	}

	if offer.Percent == order.DiscountPercent {
		return domain.AppliedDiscount{
			Percent:       order.DiscountPercent,
			PaymentMethod: order.PaymentMethod,
			Changed:       false,
			Disclosure:    Disclosure(order.DiscountPercent),
		}, nil
	}

	order.DiscountPercent = offer.Percent
	order.DiscountDisclosed = false
	if offer.Percent > 0 {
		order.PaymentMethod = domain.PaymentMethodPayNow
	}

	return domain.AppliedDiscount{
		Percent:       order.DiscountPercent,
		PaymentMethod: order.PaymentMethod,
		Changed:       true,
		Disclosure:    Disclosure(order.DiscountPercent),
	}, nil
}

// AcknowledgeDisclosure фиксирует, что условия скидки показаны контрагенту.
// Возвращает true, если флаг изменился.
func AcknowledgeDisclosure(order *domain.Order) (bool, error) {
	if order.DiscountPercent == 0 || order.DiscountDisclosed {
		return false, nil
	}
	if order.Status != domain.OrderStatusPending {
		return false, &domain.PreconditionError{
			From:        order.Status,
			To:          order.Status,
			Requirement: "pending status",
		}
	}
	order.DiscountDisclosed = true
	return true, nil
}

// RequireDisclosure не выпускает заказ со скидкой из pending без раскрытия условий.
func RequireDisclosure(order *domain.Order, target domain.OrderStatus) error {
	if order.DiscountPercent > 0 && !order.DiscountDisclosed {
		return &domain.PreconditionError{
			From:        order.Status,
			To:          target,
			Requirement: "discount disclosure acknowledgement",
		}
	}
	return nil
}
