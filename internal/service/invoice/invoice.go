// Package invoice собирает два документа из одного заказа: информационный memo
// для розницы и налоговый счёт для посредника (gaddi). Сборка детерминирована:
// одинаковый заказ и режим дают побайтно одинаковый Render.
package invoice

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/pricing"
)

// Mode — вид документа.
type Mode string

const (
	// ModeRetailerMemo — внутренний документ без налоговой силы.
	ModeRetailerMemo Mode = "retailer_memo"
	// ModeIntermediaryTaxInvoice — налоговый счёт для посредника.
	ModeIntermediaryTaxInvoice Mode = "intermediary_tax_invoice"
)

// SettlementDays — срок, в который посредник гарантирует оплату.
const SettlementDays = 60

// ParseMode разбирает режим без учёта регистра.
func ParseMode(raw string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(raw)))
	switch mode {
	case ModeRetailerMemo, ModeIntermediaryTaxInvoice:
		return mode, nil
	default:
		return "", domain.NewValidationError("mode", "must be retailer_memo or intermediary_tax_invoice")
	}
}

// Line — строка документа из снимка позиции заказа.
type Line struct {
	Position           int    `json:"position"`
	VariantID          string `json:"variant_id"`
	ProductName        string `json:"product_name"`
	Color              string `json:"color,omitempty"`
	SizeRange          string `json:"size_range,omitempty"`
	PricePerPieceMinor int64  `json:"price_per_piece_minor"`
	PiecesPerSet       int32  `json:"pieces_per_set"`
	QuantitySets       int32  `json:"quantity_sets"`
	Pieces             int64  `json:"pieces"`
	LineTotalMinor     int64  `json:"line_total_minor"`
}

// Document — структурированный документ; печатная форма строится снаружи.
type Document struct {
	Number         string    `json:"number"`
	Mode           Mode      `json:"mode"`
	Title          string    `json:"title"`
	TaxInstrument  bool      `json:"tax_instrument"`
	OrderID        string    `json:"order_id"`
	AccountID      string    `json:"account_id"`
	IntermediaryID string    `json:"intermediary_id,omitempty"`
	OrderStatus    string    `json:"order_status"`
	PaymentMethod  string    `json:"payment_method"`
	IssuedAt       time.Time `json:"issued_at"`
	Carrier        string    `json:"carrier,omitempty"`
	GRNumber       string    `json:"gr_number,omitempty"`
	EWayBillNumber string    `json:"eway_bill_number,omitempty"`

	Lines []Line `json:"lines"`

	SubtotalMinor    int64 `json:"subtotal_minor"`
	ReductionPercent int   `json:"reduction_percent"`
	ReductionMinor   int64 `json:"reduction_minor"`
	TaxableMinor     int64 `json:"taxable_minor"`
	GSTPercent       int   `json:"gst_percent"`
	GSTMinor         int64 `json:"gst_minor"`
	GrandTotalMinor  int64 `json:"grand_total_minor"`

	Terms []string `json:"terms"`
}

type options struct {
	negotiatedDiscount bool
}

// Option меняет правила сборки.
type Option func(*options)

// WithNegotiatedDiscount берёт снижение налогового счёта из скидки заказа
// вместо фиксированных 3%. Включается только по решению бизнеса.
func WithNegotiatedDiscount() Option {
	return func(o *options) { o.negotiatedDiscount = true }
}

// Compose собирает документ заказа в заданном режиме. Функция чистая:
// время выпуска берётся из заказа, а не из часов.
func Compose(order domain.Order, mode Mode, opts ...Option) (Document, error) {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return Document{}, err
	}
	if len(order.Items) == 0 {
		return Document{}, domain.NewValidationError("items", "order has no lines to invoice")
	}

	// Подытог всегда без скидки, общий для обоих режимов.
	breakdown, err := pricing.PriceLines(order.Items, 0)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		Mode:           mode,
		OrderID:        order.ID,
		AccountID:      order.AccountID,
		IntermediaryID: order.IntermediaryID,
		OrderStatus:    string(order.Status),
		PaymentMethod:  string(order.PaymentMethod),
		IssuedAt:       order.CreatedAt.UTC(),
		Carrier:        order.Transport.Carrier,
		GRNumber:       order.Transport.GRNumber,
		EWayBillNumber: order.Transport.EWayBillNumber,
		Lines:          make([]Line, 0, len(breakdown.Lines)),
		SubtotalMinor:  breakdown.GrossMinor,
		GSTPercent:     domain.GSTPercent,
	}
	for i, lq := range breakdown.Lines {
		doc.Lines = append(doc.Lines, Line{
			Position:           i + 1,
			VariantID:          lq.Item.VariantID,
			ProductName:        lq.Item.ProductName,
			Color:              lq.Item.Color,
			SizeRange:          lq.Item.SizeRange,
			PricePerPieceMinor: lq.Item.PricePerPieceMinor,
			PiecesPerSet:       lq.Item.PiecesPerSet,
			QuantitySets:       lq.Item.QuantitySets,
			Pieces:             int64(lq.Item.PiecesPerSet) * int64(lq.Item.QuantitySets),
			LineTotalMinor:     lq.Quote.LineTotalMinor,
		})
	}

	switch mode {
	case ModeIntermediaryTaxInvoice:
		reduction := domain.IntermediaryReductionPercent
		if cfg.negotiatedDiscount {
			reduction = order.DiscountPercent
		}
		doc.Number = "TAX-" + order.ID
		doc.Title = "Tax Invoice"
		doc.TaxInstrument = true
		doc.ReductionPercent = reduction
		doc.ReductionMinor = pricing.PercentOf(doc.SubtotalMinor, int64(reduction))
		doc.Terms = []string{
			fmt.Sprintf("Partner guarantees payment within %d days.", SettlementDays),
			fmt.Sprintf("GST charged at %d%% on the taxable value.", domain.GSTPercent),
			"Valid tax invoice for input tax credit.",
		}
	default:
		doc.Number = "MEMO-" + order.ID
		doc.Title = "Estimate / Memo"
		doc.Terms = []string{
			"This memo is for information only and is not a tax invoice.",
			fmt.Sprintf("GST shown at %d%% on the full subtotal.", domain.GSTPercent),
		}
		if order.PaymentMethod == domain.PaymentMethodCredit {
			doc.Terms = append(doc.Terms, "Amount will be added to your account ledger.")
		} else {
			doc.Terms = append(doc.Terms, "Payment due immediately.")
		}
	}

	doc.TaxableMinor = doc.SubtotalMinor - doc.ReductionMinor
	doc.GSTMinor = pricing.PercentOf(doc.TaxableMinor, domain.GSTPercent)
	doc.GrandTotalMinor = doc.TaxableMinor + doc.GSTMinor
	return doc, nil
}

// Render сериализует документ в канонический JSON.
func Render(doc Document) ([]byte, error) {
	return json.Marshal(doc)
}
