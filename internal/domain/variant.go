package domain

import "time"

// ProductVariant — вариант товара (цвет, размерный ряд) со складским остатком в сетах.
type ProductVariant struct {
	ID                 string
	ProductID          string
	ProductName        string
	Color              string
	SizeRange          string
	PricePerPieceMinor int64
	PiecesPerSet       int32
	// Stock — остаток в сетах, никогда не уходит ниже нуля.
	Stock     int32
	UpdatedAt time.Time
}

// Validate проверяет карточку варианта.
func (v *ProductVariant) Validate() []error {
	var errs []error

	if v.ID == "" {
		errs = append(errs, NewValidationError("variant_id", "is required"))
	}
	if v.PiecesPerSet <= 0 {
		errs = append(errs, NewValidationError("pieces_per_set", "must be greater than zero"))
	}
	if v.PricePerPieceMinor < 0 {
		errs = append(errs, NewValidationError("price_per_piece_minor", "must be non-negative"))
	}
	if v.Stock < 0 {
		errs = append(errs, NewValidationError("stock", "must be non-negative"))
	}

	return errs
}
