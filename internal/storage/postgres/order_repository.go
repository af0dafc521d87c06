package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const orderColumns = `
	id, account_id, status, payment_method, intermediary_id,
	discount_percent, discount_disclosed, total_minor, factory_amount_minor,
	invoice_url, eway_bill_url, transport_slip_url,
	carrier, gr_number, vehicle_number, station, eway_bill_number,
	stock_reserved, cancel_reason, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		`,
			order.ID, order.AccountID, string(order.Status), string(order.PaymentMethod), order.IntermediaryID,
			order.DiscountPercent, order.DiscountDisclosed, order.TotalMinor, order.FactoryAmountMinor,
			order.Documents.InvoiceURL, order.Documents.EWayBillURL, order.Documents.TransportSlipURL,
			order.Transport.Carrier, order.Transport.GRNumber, order.Transport.VehicleNumber,
			order.Transport.Station, order.Transport.EWayBillNumber,
			order.StockReserved, order.CancelReason, order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConcurrencyConflict
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for position, item := range order.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (
					id, order_id, position, product_id, variant_id, product_name, color, size_range,
					price_per_piece_minor, pieces_per_set, quantity_sets, created_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			`,
				item.ID, order.ID, position, item.ProductID, item.VariantID, item.ProductName,
				item.Color, item.SizeRange, item.PricePerPieceMinor, item.PiecesPerSet,
				item.QuantitySets, item.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (r *orderRepository) ListByAccount(accountID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1 ORDER BY created_at DESC, id DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", accountID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// Save обновляет изменяемые поля заказа условным UPDATE по версии. Позиции
// неизменяемы после создания и не перезаписываются.
func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1,
			    payment_method = $2,
			    discount_percent = $3,
			    discount_disclosed = $4,
			    total_minor = $5,
			    factory_amount_minor = $6,
			    invoice_url = $7,
			    eway_bill_url = $8,
			    transport_slip_url = $9,
			    carrier = $10,
			    gr_number = $11,
			    vehicle_number = $12,
			    station = $13,
			    eway_bill_number = $14,
			    stock_reserved = $15,
			    cancel_reason = $16,
			    version = version + 1,
			    updated_at = $17
			WHERE id = $18
			  AND version = $19
		`,
			string(order.Status), string(order.PaymentMethod),
			order.DiscountPercent, order.DiscountDisclosed,
			order.TotalMinor, order.FactoryAmountMinor,
			order.Documents.InvoiceURL, order.Documents.EWayBillURL, order.Documents.TransportSlipURL,
			order.Transport.Carrier, order.Transport.GRNumber, order.Transport.VehicleNumber,
			order.Transport.Station, order.Transport.EWayBillNumber,
			order.StockReserved, order.CancelReason, order.UpdatedAt,
			order.ID, order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			return nil
		}

		var id string
		err = tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, order.ID).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return domain.ErrOrderNotFound
		case err != nil:
			return fmt.Errorf("check order exists: %w", err)
		default:
			return domain.ErrConcurrencyConflict
		}
	})
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, variant_id, product_name, color, size_range,
		       price_per_piece_minor, pieces_per_set, quantity_sets, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.VariantID, &item.ProductName, &item.Color, &item.SizeRange,
			&item.PricePerPieceMinor, &item.PiecesPerSet, &item.QuantitySets, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		status        string
		paymentMethod string
	)
	err := row.Scan(
		&order.ID, &order.AccountID, &status, &paymentMethod, &order.IntermediaryID,
		&order.DiscountPercent, &order.DiscountDisclosed, &order.TotalMinor, &order.FactoryAmountMinor,
		&order.Documents.InvoiceURL, &order.Documents.EWayBillURL, &order.Documents.TransportSlipURL,
		&order.Transport.Carrier, &order.Transport.GRNumber, &order.Transport.VehicleNumber,
		&order.Transport.Station, &order.Transport.EWayBillNumber,
		&order.StockReserved, &order.CancelReason, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentMethod = domain.PaymentMethod(paymentMethod)
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
