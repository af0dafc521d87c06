package grpcsvc

import (
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/inventory"
	"github.com/vladislavdragonenkov/wholesale/internal/service/invoice"
	"github.com/vladislavdragonenkov/wholesale/internal/service/ledger"
)

// OrderItemView — позиция заказа в ответах API.
type OrderItemView struct {
	ID                 string `json:"id"`
	ProductID          string `json:"product_id"`
	VariantID          string `json:"variant_id"`
	ProductName        string `json:"product_name"`
	Color              string `json:"color,omitempty"`
	SizeRange          string `json:"size_range,omitempty"`
	PricePerPieceMinor int64  `json:"price_per_piece_minor"`
	PiecesPerSet       int32  `json:"pieces_per_set"`
	QuantitySets       int32  `json:"quantity_sets"`
}

// DocumentsView — ссылки на документы заказа.
type DocumentsView struct {
	InvoiceURL       string `json:"invoice_url,omitempty" validate:"omitempty,url"`
	EWayBillURL      string `json:"eway_bill_url,omitempty" validate:"omitempty,url"`
	TransportSlipURL string `json:"transport_slip_url,omitempty" validate:"omitempty,url"`
}

// TransportView — данные перевозчика.
type TransportView struct {
	Carrier        string `json:"carrier,omitempty"`
	GRNumber       string `json:"gr_number,omitempty"`
	VehicleNumber  string `json:"vehicle_number,omitempty"`
	Station        string `json:"station,omitempty"`
	EWayBillNumber string `json:"eway_bill_number,omitempty"`
}

// OrderView — заказ в ответах API.
type OrderView struct {
	ID                 string          `json:"id"`
	AccountID          string          `json:"account_id"`
	Status             string          `json:"status"`
	PaymentMethod      string          `json:"payment_method"`
	IntermediaryID     string          `json:"intermediary_id,omitempty"`
	DiscountPercent    int             `json:"discount_percent"`
	DiscountDisclosed  bool            `json:"discount_disclosed"`
	TotalMinor         int64           `json:"total_minor"`
	FactoryAmountMinor int64           `json:"factory_amount_minor"`
	Items              []OrderItemView `json:"items"`
	Documents          DocumentsView   `json:"documents"`
	Transport          TransportView   `json:"transport"`
	StockReserved      bool            `json:"stock_reserved"`
	CancelReason       string          `json:"cancel_reason,omitempty"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TimelineEventView — событие журнала заказа.
type TimelineEventView struct {
	Seq      int64     `json:"seq"`
	Type     string    `json:"type"`
	From     string    `json:"from,omitempty"`
	Status   string    `json:"status,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// ShortageView — предупреждение о нехватке на складе.
type ShortageView struct {
	VariantID string `json:"variant_id"`
	Requested int32  `json:"requested"`
	Available int32  `json:"available"`
}

// TransactionView — проводка леджера.
type TransactionView struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Type        string    `json:"type"`
	AmountMinor int64     `json:"amount_minor"`
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
	ReferenceID string    `json:"reference_id,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// CommissionView — комиссия агента по заказу.
type CommissionView struct {
	OrderID         string `json:"order_id"`
	AccountID       string `json:"account_id"`
	OrderStatus     string `json:"order_status"`
	OrderValueMinor int64  `json:"order_value_minor"`
	CommissionMinor int64  `json:"commission_minor"`
	Status          string `json:"status"`
}

// CreateLine — позиция нового заказа.
type CreateLine struct {
	VariantID    string `json:"variant_id" validate:"required"`
	QuantitySets int32  `json:"quantity_sets" validate:"gt=0"`
}

type CreateOrderRequest struct {
	// OrderID опционален; без него сервер генерирует UUID.
	OrderID        string       `json:"order_id,omitempty"`
	AccountID      string       `json:"account_id" validate:"required"`
	PaymentMethod  string       `json:"payment_method,omitempty" validate:"omitempty,oneof=pay_now credit"`
	IntermediaryID string       `json:"intermediary_id,omitempty"`
	Lines          []CreateLine `json:"lines" validate:"required,min=1,dive"`
}

type CreateOrderResponse struct {
	Order    OrderView      `json:"order"`
	Warnings []ShortageView `json:"warnings,omitempty"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	// TimelineTypes сужает журнал до перечисленных типов событий.
	TimelineTypes []string `json:"timeline_types,omitempty"`
	// TimelineAfterSeq отдаёт журнал начиная с записи после указанной.
	TimelineAfterSeq int64 `json:"timeline_after_seq,omitempty" validate:"gte=0"`
}

type GetOrderResponse struct {
	Order    OrderView           `json:"order"`
	Timeline []TimelineEventView `json:"timeline,omitempty"`
}

type ListOrdersRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	PageSize  int32  `json:"page_size,omitempty" validate:"gte=0,lte=500"`
}

type ListOrdersResponse struct {
	Orders []OrderView `json:"orders"`
}

// TransitionOrderRequest двигает заказ по графу статусов.
type TransitionOrderRequest struct {
	OrderID      string        `json:"order_id" validate:"required"`
	TargetStatus string        `json:"target_status" validate:"required"`
	Confirmed    bool          `json:"confirmed,omitempty"`
	Reason       string        `json:"reason,omitempty" validate:"max=500"`
	Documents    DocumentsView `json:"documents"`
	Transport    TransportView `json:"transport"`
	Actor        string        `json:"actor,omitempty"`
}

// OrderResponse — общий ответ мутирующих команд над заказом.
type OrderResponse struct {
	Order OrderView `json:"order"`
}

type AmendDocumentsRequest struct {
	OrderID   string        `json:"order_id" validate:"required"`
	Documents DocumentsView `json:"documents"`
}

type ApplyDiscountRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
	Applied bool   `json:"applied"`
}

type ApplyDiscountResponse struct {
	Order      OrderView `json:"order"`
	Changed    bool      `json:"changed"`
	Disclosure string    `json:"disclosure,omitempty"`
}

type AcknowledgeDisclosureRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// ComposeInvoiceRequest без mode выбирает вид документа по заказу.
type ComposeInvoiceRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Mode    string `json:"mode,omitempty"`
}

type ComposeInvoiceResponse struct {
	Document invoice.Document `json:"document"`
}

type RecordTransactionRequest struct {
	ID          string    `json:"id,omitempty"`
	AccountID   string    `json:"account_id" validate:"required"`
	Type        string    `json:"type" validate:"required,oneof=payment charge"`
	AmountMinor int64     `json:"amount_minor" validate:"gt=0"`
	Date        time.Time `json:"date,omitempty"`
	Description string    `json:"description,omitempty" validate:"max=500"`
	ReferenceID string    `json:"reference_id,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

type RecordTransactionResponse struct {
	Transaction TransactionView `json:"transaction"`
	DuesMinor   int64           `json:"dues_minor"`
}

type GetStatementRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

type GetStatementResponse struct {
	AccountID     string            `json:"account_id"`
	Transactions  []TransactionView `json:"transactions"`
	ChargesMinor  int64             `json:"charges_minor"`
	PaymentsMinor int64             `json:"payments_minor"`
	DuesMinor     int64             `json:"dues_minor"`
}

type ListAgentCommissionsRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
}

type ListAgentCommissionsResponse struct {
	AgentID      string           `json:"agent_id"`
	Commissions  []CommissionView `json:"commissions"`
	PendingMinor int64            `json:"pending_minor"`
	PaidMinor    int64            `json:"paid_minor"`
}

// QuoteLineRequest — расчёт позиции для корзины, без заказа.
type QuoteLineRequest struct {
	PricePerPieceMinor int64 `json:"price_per_piece_minor"`
	PiecesPerSet       int32 `json:"pieces_per_set"`
	QuantitySets       int32 `json:"quantity_sets"`
	DiscountPercent    int   `json:"discount_percent"`
}

type QuoteLineResponse struct {
	PerSetMinor    int64 `json:"per_set_minor"`
	UnitPriceMinor int64 `json:"unit_price_minor"`
	LineTotalMinor int64 `json:"line_total_minor"`
}

// NewOrderView переводит заказ в форму ответа.
func NewOrderView(order domain.Order) OrderView {
	items := make([]OrderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemView{
			ID:                 item.ID,
			ProductID:          item.ProductID,
			VariantID:          item.VariantID,
			ProductName:        item.ProductName,
			Color:              item.Color,
			SizeRange:          item.SizeRange,
			PricePerPieceMinor: item.PricePerPieceMinor,
			PiecesPerSet:       item.PiecesPerSet,
			QuantitySets:       item.QuantitySets,
		})
	}

	return OrderView{
		ID:                 order.ID,
		AccountID:          order.AccountID,
		Status:             string(order.Status),
		PaymentMethod:      string(order.PaymentMethod),
		IntermediaryID:     order.IntermediaryID,
		DiscountPercent:    order.DiscountPercent,
		DiscountDisclosed:  order.DiscountDisclosed,
		TotalMinor:         order.TotalMinor,
		FactoryAmountMinor: order.FactoryAmountMinor,
		Items:              items,
		Documents: DocumentsView{
			InvoiceURL:       order.Documents.InvoiceURL,
			EWayBillURL:      order.Documents.EWayBillURL,
			TransportSlipURL: order.Documents.TransportSlipURL,
		},
		Transport: TransportView{
			Carrier:        order.Transport.Carrier,
			GRNumber:       order.Transport.GRNumber,
			VehicleNumber:  order.Transport.VehicleNumber,
			Station:        order.Transport.Station,
			EWayBillNumber: order.Transport.EWayBillNumber,
		},
		StockReserved: order.StockReserved,
		CancelReason:  order.CancelReason,
		Version:       order.Version,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

// NewTimelineView переводит журнал заказа в форму ответа.
func NewTimelineView(events []domain.TimelineEvent) []TimelineEventView {
	result := make([]TimelineEventView, 0, len(events))
	for _, event := range events {
		result = append(result, TimelineEventView{
			Seq:      event.Seq,
			Type:     string(event.Type),
			From:     string(event.From),
			Status:   string(event.Status),
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return result
}

// NewTransactionView переводит проводку в форму ответа.
func NewTransactionView(tx domain.Transaction) TransactionView {
	return TransactionView{
		ID:          tx.ID,
		AccountID:   tx.AccountID,
		Type:        string(tx.Type),
		AmountMinor: tx.AmountMinor,
		Date:        tx.Date,
		Description: tx.Description,
		ReferenceID: tx.ReferenceID,
		CreatedBy:   tx.CreatedBy,
	}
}

// NewStatementResponse переводит выписку аккаунта в форму ответа.
func NewStatementResponse(statement ledger.Statement) *GetStatementResponse {
	txs := make([]TransactionView, 0, len(statement.Transactions))
	for _, tx := range statement.Transactions {
		txs = append(txs, NewTransactionView(tx))
	}
	return &GetStatementResponse{
		AccountID:     statement.AccountID,
		Transactions:  txs,
		ChargesMinor:  statement.ChargesMinor,
		PaymentsMinor: statement.PaymentsMinor,
		DuesMinor:     statement.DuesMinor,
	}
}

// NewCommissionsResponse собирает проекцию комиссий агента с итогами по статусам.
func NewCommissionsResponse(agentID string, records []domain.CommissionRecord) *ListAgentCommissionsResponse {
	resp := &ListAgentCommissionsResponse{
		AgentID:     agentID,
		Commissions: make([]CommissionView, 0, len(records)),
	}
	for _, record := range records {
		resp.Commissions = append(resp.Commissions, CommissionView{
			OrderID:         record.OrderID,
			AccountID:       record.AccountID,
			OrderStatus:     string(record.OrderStatus),
			OrderValueMinor: record.OrderValueMinor,
			CommissionMinor: record.CommissionMinor,
			Status:          string(record.Status),
		})
		if record.Status == domain.CommissionStatusPaid {
			resp.PaidMinor += record.CommissionMinor
		} else {
			resp.PendingMinor += record.CommissionMinor
		}
	}
	return resp
}

func shortageViews(shortages []inventory.Shortage) []ShortageView {
	if len(shortages) == 0 {
		return nil
	}
	result := make([]ShortageView, 0, len(shortages))
	for _, shortage := range shortages {
		result = append(result, ShortageView(shortage))
	}
	return result
}

func (d DocumentsView) toDomain() domain.Documents {
	return domain.Documents{
		InvoiceURL:       d.InvoiceURL,
		EWayBillURL:      d.EWayBillURL,
		TransportSlipURL: d.TransportSlipURL,
	}
}

func (t TransportView) toDomain() domain.Transport {
	return domain.Transport{
		Carrier:        t.Carrier,
		GRNumber:       t.GRNumber,
		VehicleNumber:  t.VehicleNumber,
		Station:        t.Station,
		EWayBillNumber: t.EWayBillNumber,
	}
}

// commandOrderID привязывает записи журнала команд к заказу.

func (r *CreateOrderRequest) commandOrderID() string {
	if r == nil {
		return ""
	}
	return r.OrderID
}

func (r *TransitionOrderRequest) commandOrderID() string {
	if r == nil {
		return ""
	}
	return r.OrderID
}

func (r *AmendDocumentsRequest) commandOrderID() string {
	if r == nil {
		return ""
	}
	return r.OrderID
}

func (r *ApplyDiscountRequest) commandOrderID() string {
	if r == nil {
		return ""
	}
	return r.OrderID
}

func (r *AcknowledgeDisclosureRequest) commandOrderID() string {
	if r == nil {
		return ""
	}
	return r.OrderID
}

func (r *CreateOrderResponse) commandOrderID() string {
	if r == nil {
		return ""
	}
	return r.Order.ID
}

func (r *OrderResponse) commandOrderID() string {
	if r == nil {
		return ""
	}
	return r.Order.ID
}

func (r *ApplyDiscountResponse) commandOrderID() string {
	if r == nil {
		return ""
	}
	return r.Order.ID
}
