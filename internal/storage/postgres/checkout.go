package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
)

type tx struct {
	q querier
}

// CartSnapshot locks the cart row for the rest of the transaction so that a
// second checkout of the same cart waits and then sees it cleared.
func (t *tx) CartSnapshot(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	var cartID int64
	err := t.q.QueryRowContext(ctx, `
		SELECT id
		FROM carts
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&cartID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartSnapshot{}, storage.ErrNotFound
		}
		return domain.CartSnapshot{}, classify(err)
	}

	entries, err := snapshotEntries(ctx, t.q, cartID)
	if err != nil {
		return domain.CartSnapshot{}, classify(err)
	}

	return domain.CartSnapshot{CartID: cartID, UserID: userID, Entries: entries}, nil
}

func snapshotEntries(ctx context.Context, q querier, cartID int64) ([]domain.SnapshotEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ci.product_id, p.name, ci.quantity, p.price, p.stock_quantity, ci.added_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1 AND p.is_active
		ORDER BY ci.added_at, ci.id
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := []domain.SnapshotEntry{}
	for rows.Next() {
		var e domain.SnapshotEntry
		if err := rows.Scan(&e.ProductID, &e.ProductName, &e.Quantity, &e.UnitPrice, &e.StockQuantity, &e.AddedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (t *tx) CreateOrder(ctx context.Context, order domain.NewOrder) (domain.OrderReceipt, error) {
	receipt := domain.OrderReceipt{
		OrderID:   uuid.New().String(),
		Total:     domain.OrderTotal(order.Lines),
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, shipping_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, receipt.OrderID, order.UserID, receipt.Total, order.ShippingAddress, receipt.Status, receipt.CreatedAt)
	if err != nil {
		return domain.OrderReceipt{}, fmt.Errorf("insert order: %w", classify(err))
	}

	for _, line := range order.Lines {
		_, err = t.q.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
		`, receipt.OrderID, line.ProductID, line.Quantity, line.UnitPrice)
		if err != nil {
			return domain.OrderReceipt{}, fmt.Errorf("insert order item %d: %w", line.ProductID, classify(err))
		}
	}

	return receipt, nil
}

func (t *tx) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	result, err := t.q.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2
	`, productID, quantity)
	if err != nil {
		return false, classify(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

func (t *tx) ClearCart(ctx context.Context, cartID int64) error {
	_, err := t.q.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = $1
	`, cartID)
	return classify(err)
}
