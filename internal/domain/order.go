package domain

import (
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл оптового заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, цены зафиксированы, склад не тронут.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusAccepted — условия оплаты подтверждены, сеты зарезервированы.
	OrderStatusAccepted OrderStatus = "accepted"
	// OrderStatusReady — счёт приложен, заказ готов к отгрузке.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusDispatched — передан перевозчику, есть номер GR (builty).
	OrderStatusDispatched OrderStatus = "dispatched"
	// OrderStatusDelivered — доставлен, терминальный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — отменён до отгрузки, терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// AllOrderStatuses перечисляет статусы в порядке жизненного цикла.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusReady,
	OrderStatusDispatched,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusAccepted, OrderStatusCancelled},
	OrderStatusAccepted:   {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:      {OrderStatusDispatched, OrderStatusCancelled},
	OrderStatusDispatched: {OrderStatusDelivered},
}

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	for _, known := range AllOrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo проверяет наличие ребра в графе статусов.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AllowsDocumentAmend — документы можно заменять после принятия и до доставки.
func (s OrderStatus) AllowsDocumentAmend() bool {
	switch s {
	case OrderStatusAccepted, OrderStatusReady, OrderStatusDispatched:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает статус без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// PaymentMethod — способ расчёта по заказу.
type PaymentMethod string

const (
	// PaymentMethodPayNow — немедленная оплата, единственный вариант при скидке.
	PaymentMethodPayNow PaymentMethod = "pay_now"
	// PaymentMethodCredit — отложенная оплата через леджер аккаунта.
	PaymentMethodCredit PaymentMethod = "credit"
)

// Valid проверяет способ оплаты.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodPayNow || m == PaymentMethodCredit
}

const (
	// MaxDiscountPercent — потолок согласованной скидки.
	MaxDiscountPercent = 3
	// IntermediaryReductionPercent — фиксированное снижение в налоговом счёте через gaddi.
	IntermediaryReductionPercent = 3
	// GSTPercent — единая ставка GST.
	GSTPercent = 5
)

// OrderItem — снимок позиции на момент создания заказа, после не меняется.
type OrderItem struct {
	ID          string
	ProductID   string
	VariantID   string
	ProductName string
	Color       string
	SizeRange   string
	// PricePerPieceMinor — цена за штуку в пайсах.
	PricePerPieceMinor int64
	PiecesPerSet       int32
	// QuantitySets — количество в сетах, не в штуках.
	QuantitySets int32
	CreatedAt    time.Time
}

// GrossMinor возвращает стоимость позиции без скидки.
func (i OrderItem) GrossMinor() int64 {
	return i.PricePerPieceMinor * int64(i.PiecesPerSet) * int64(i.QuantitySets)
}

// Documents — ссылки на загруженные документы, заполняются по мере движения заказа.
type Documents struct {
	InvoiceURL       string
	EWayBillURL      string
	TransportSlipURL string
}

// Empty сообщает, что ни одна ссылка не задана.
func (d Documents) Empty() bool {
	return d.InvoiceURL == "" && d.EWayBillURL == "" && d.TransportSlipURL == ""
}

// Merge возвращает документы, где непустые поля patch заменяют текущие.
func (d Documents) Merge(patch Documents) Documents {
	if patch.InvoiceURL != "" {
		d.InvoiceURL = patch.InvoiceURL
	}
	if patch.EWayBillURL != "" {
		d.EWayBillURL = patch.EWayBillURL
	}
	if patch.TransportSlipURL != "" {
		d.TransportSlipURL = patch.TransportSlipURL
	}
	return d
}

// Transport — данные перевозчика для отгрузки.
type Transport struct {
	Carrier        string
	GRNumber       string
	VehicleNumber  string
	Station        string
	EWayBillNumber string
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID             string
	AccountID      string
	Items          []OrderItem
	Status         OrderStatus
	PaymentMethod  PaymentMethod
	IntermediaryID string
	// DiscountPercent — согласованная скидка 0..3.
	DiscountPercent int
	// DiscountDisclosed фиксирует, что контрагент видел условия скидки.
	DiscountDisclosed bool
	TotalMinor        int64
	// FactoryAmountMinor — сумма на стороне фабрики; при работе через gaddi отличается от TotalMinor.
	FactoryAmountMinor int64
	Documents          Documents
	Transport          Transport
	// StockReserved выставляется после успешного резерва при принятии.
	StockReserved bool
	CancelReason  string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone возвращает копию заказа с собственным слайсом позиций.
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]OrderItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}

// GrossMinor — сумма позиций без скидки.
func (o *Order) GrossMinor() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.GrossMinor()
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.AccountID == "" {
		errs = append(errs, NewValidationError("account_id", "is required"))
	}
	if len(o.Items) == 0 {
		errs = append(errs, NewValidationError("items", "must contain at least one line"))
	}
	if !o.Status.Valid() {
		errs = append(errs, NewValidationError("status", "is unknown"))
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, NewValidationError("payment_method", "is unknown"))
	}
	if o.DiscountPercent < 0 || o.DiscountPercent > MaxDiscountPercent {
		errs = append(errs, NewValidationError("discount_percent", "must be within 0..3"))
	}
	// Скидка отключает отложенную оплату.
	if o.DiscountPercent > 0 && o.PaymentMethod != PaymentMethodPayNow {
		errs = append(errs, NewValidationError("payment_method", "must be pay_now when a discount is applied"))
	}
	// Заказы через gaddi не бывают в кредит.
	if o.IntermediaryID != "" && o.PaymentMethod != PaymentMethodPayNow {
		errs = append(errs, NewValidationError("payment_method", "must be pay_now when settled through an intermediary"))
	}
	if o.TotalMinor < 0 {
		errs = append(errs, NewValidationError("total_minor", "must be non-negative"))
	}
	if o.FactoryAmountMinor < 0 {
		errs = append(errs, NewValidationError("factory_amount_minor", "must be non-negative"))
	}

	for _, item := range o.Items {
		if item.VariantID == "" {
			errs = append(errs, NewValidationError("items.variant_id", "is required"))
		}
		if item.PiecesPerSet <= 0 {
			errs = append(errs, NewValidationError("items.pieces_per_set", "must be greater than zero"))
		}
		if item.QuantitySets <= 0 {
			errs = append(errs, NewValidationError("items.quantity_sets", "must be greater than zero"))
		}
		if item.PricePerPieceMinor < 0 {
			errs = append(errs, NewValidationError("items.price_per_piece_minor", "must be non-negative"))
		}
	}

	return errs
}
