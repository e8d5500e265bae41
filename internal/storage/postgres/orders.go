package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
)

func (s *Store) ListOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM orders
		WHERE user_id = $1
	`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, total_amount, shipping_address, status, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, total, nil
	}

	if err := s.loadItems(ctx, orderIDs, orderMap); err != nil {
		return nil, 0, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, total, nil
}

func (s *Store) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, storage.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_amount, shipping_address, status, created_at, updated_at
		FROM orders
		WHERE id = $1 AND user_id = $2
	`, orderID, userID)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	order.Items = []domain.OrderItem{}

	if err := s.loadItems(ctx, []string{order.ID}, map[string]*domain.Order{order.ID: order}); err != nil {
		return nil, err
	}

	return order, nil
}

func (s *Store) CountOrdersByStatus(ctx context.Context, userID string) (map[domain.OrderStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM orders
		WHERE user_id = $1
		GROUP BY status
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.OrderStatus]int)
	for rows.Next() {
		var status domain.OrderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

// loadItems fills the items of every order in orderMap with one query. Items
// whose product row is gone keep a nil Product.
func (s *Store) loadItems(ctx context.Context, orderIDs []string, orderMap map[string]*domain.Order) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.id, oi.product_id, oi.quantity, oi.unit_price,
		       p.id, p.name, p.price, p.is_active
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1::uuid[])
		ORDER BY oi.id
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			orderID       string
			item          domain.OrderItem
			productID     sql.NullInt64
			productName   sql.NullString
			productPrice  decimal.NullDecimal
			productActive sql.NullBool
		)
		if err := rows.Scan(&orderID, &item.ID, &item.ProductID, &item.Quantity, &item.UnitPrice,
			&productID, &productName, &productPrice, &productActive); err != nil {
			return err
		}

		item.Subtotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if productID.Valid {
			item.Product = &domain.ProductSummary{
				ID:       productID.Int64,
				Name:     productName.String,
				Price:    productPrice.Decimal,
				IsActive: productActive.Bool,
			}
		}

		if order, ok := orderMap[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*domain.Order, error) {
	order := &domain.Order{}
	err := row.Scan(&order.ID, &order.UserID, &order.Total, &order.ShippingAddress,
		&order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return order, nil
}
