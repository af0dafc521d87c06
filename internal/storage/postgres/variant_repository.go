package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

type variantRepository struct {
	db *sql.DB
}

// NewVariantRepository создаёт PostgreSQL-реализацию VariantRepository.
func NewVariantRepository(store *Store) domain.VariantRepository {
	return &variantRepository{db: store.DB()}
}

func (r *variantRepository) Create(variant domain.ProductVariant) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if variant.UpdatedAt.IsZero() {
		variant.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO product_variants (
			id, product_id, product_name, color, size_range,
			price_per_piece_minor, pieces_per_set, stock, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		variant.ID, variant.ProductID, variant.ProductName, variant.Color, variant.SizeRange,
		variant.PricePerPieceMinor, variant.PiecesPerSet, variant.Stock, variant.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrVariantExists
	case isCheckViolation(err):
		return domain.NewValidationError("variant", err.Error())
	default:
		return fmt.Errorf("insert variant: %w", err)
	}
}

func (r *variantRepository) Get(id string) (domain.ProductVariant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	variant, err := scanVariant(r.db.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, color, size_range,
		       price_per_piece_minor, pieces_per_set, stock, updated_at
		FROM product_variants
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductVariant{}, domain.ErrVariantNotFound
		}
		return domain.ProductVariant{}, fmt.Errorf("select variant: %w", err)
	}
	return variant, nil
}

// AdjustStock меняет остаток одним условным UPDATE: списание проходит только
// если остаток после него неотрицателен, поэтому параллельные резервы не уводят склад в минус.
func (r *variantRepository) AdjustStock(id string, delta int32) (domain.ProductVariant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	variant, err := scanVariant(r.db.QueryRowContext(ctx, `
		UPDATE product_variants
		SET stock = stock + $2,
		    updated_at = $3
		WHERE id = $1
		  AND stock + $2 >= 0
		RETURNING id, product_id, product_name, color, size_range,
		          price_per_piece_minor, pieces_per_set, stock, updated_at
	`, id, delta, time.Now().UTC()))
	if err == nil {
		return variant, nil
	}
	if isOutOfRange(err) {
		return domain.ProductVariant{}, domain.NewValidationError("stock", "exceeds the maximum number of sets")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.ProductVariant{}, fmt.Errorf("adjust stock: %w", err)
	}

	current, getErr := r.Get(id)
	if getErr != nil {
		return domain.ProductVariant{}, getErr
	}
	return domain.ProductVariant{}, &domain.InsufficientStockError{
		VariantID: id,
		Requested: -delta,
		Available: current.Stock,
	}
}

func scanVariant(row rowScanner) (domain.ProductVariant, error) {
	var variant domain.ProductVariant
	err := row.Scan(
		&variant.ID, &variant.ProductID, &variant.ProductName, &variant.Color, &variant.SizeRange,
		&variant.PricePerPieceMinor, &variant.PiecesPerSet, &variant.Stock, &variant.UpdatedAt,
	)
	return variant, err
}

var _ domain.VariantRepository = (*variantRepository)(nil)
