// Package pricing считает цены за сет, позицию и заказ.
// Все суммы в минимальных единицах валюты (пайсы), округление half-up.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Quote — результат расчёта одной позиции.
type Quote struct {
	PerSetMinor    int64
	UnitPriceMinor int64
	LineTotalMinor int64
}

// Price считает цену сета, цену сета со скидкой и итог позиции.
func Price(pricePerPieceMinor int64, piecesPerSet, quantitySets int32, discountPercent int) (Quote, error) {
	if pricePerPieceMinor < 0 {
		return Quote{}, domain.NewValidationError("price_per_piece_minor", "must be non-negative")
	}
	if piecesPerSet <= 0 {
		return Quote{}, domain.NewValidationError("pieces_per_set", "must be greater than zero")
	}
	if quantitySets < 0 {
		return Quote{}, domain.NewValidationError("quantity_sets", "must be non-negative")
	}
	if discountPercent < 0 || discountPercent > domain.MaxDiscountPercent {
		return Quote{}, domain.NewValidationError("discount_percent", "must be within 0..3")
	}

	perSet := pricePerPieceMinor * int64(piecesPerSet)
	unit := decimal.NewFromInt(perSet).
		Mul(decimal.NewFromInt(int64(100 - discountPercent))).
		Div(hundred).
		Round(0).
		IntPart()

	return Quote{
		PerSetMinor:    perSet,
		UnitPriceMinor: unit,
		LineTotalMinor: unit * int64(quantitySets),
	}, nil
}

// LineQuote связывает позицию заказа с её расчётом.
type LineQuote struct {
	Item  domain.OrderItem
	Quote Quote
}

// Breakdown — расчёт набора позиций.
type Breakdown struct {
	Lines []LineQuote
	// GrossMinor — сумма без скидки.
	GrossMinor int64
	// TotalMinor — сумма итогов позиций со скидкой.
	TotalMinor int64
}

// PriceLines считает все позиции заказа с одной скидкой.
func PriceLines(items []domain.OrderItem, discountPercent int) (Breakdown, error) {
	breakdown := Breakdown{Lines: make([]LineQuote, 0, len(items))}
	for _, item := range items {
		quote, err := Price(item.PricePerPieceMinor, item.PiecesPerSet, item.QuantitySets, discountPercent)
		if err != nil {
			return Breakdown{}, err
		}
		breakdown.Lines = append(breakdown.Lines, LineQuote{Item: item, Quote: quote})
		breakdown.GrossMinor += quote.PerSetMinor * int64(item.QuantitySets)
		breakdown.TotalMinor += quote.LineTotalMinor
	}
	return breakdown, nil
}

// PercentOf возвращает percent процентов от суммы с округлением half-up.
func PercentOf(amountMinor int64, percent int64) int64 {
	return decimal.NewFromInt(amountMinor).
		Mul(decimal.NewFromInt(percent)).
		Div(hundred).
		Round(0).
		IntPart()
}

// Totals пересчитывает суммы заказа по снимку позиций и текущей скидке.
// Без посредника сумма фабрики совпадает с итогом заказа.
func Totals(order domain.Order) (totalMinor, factoryMinor int64, err error) {
	breakdown, err := PriceLines(order.Items, order.DiscountPercent)
	if err != nil {
		return 0, 0, err
	}
	if order.IntermediaryID == "" {
		return breakdown.TotalMinor, breakdown.TotalMinor, nil
	}
	factory := breakdown.GrossMinor - PercentOf(breakdown.GrossMinor, domain.IntermediaryReductionPercent)
	return breakdown.TotalMinor, factory, nil
}
