package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
)

func (s *Store) CartView(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	cartID, err := s.cartID(ctx, userID)
	if err != nil {
		return domain.CartSnapshot{}, err
	}

	entries, err := snapshotEntries(ctx, s.db, cartID)
	if err != nil {
		return domain.CartSnapshot{}, err
	}

	return domain.CartSnapshot{CartID: cartID, UserID: userID, Entries: entries}, nil
}

// SetCartItem inserts the product into the cart or replaces its quantity.
// A replaced item keeps its original added_at, and with it its position. The
// cart itself is created on first use. The cart row stays locked until the
// item is written, so the change lands either before or after a checkout.
func (s *Store) SetCartItem(ctx context.Context, userID string, productID int64, quantity int) error {
	var active bool
	err := s.db.QueryRowContext(ctx, `
		SELECT is_active
		FROM products
		WHERE id = $1
	`, productID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return err
	}
	if !active {
		return storage.ErrNotFound
	}

	return s.withinCartTx(ctx, func(q querier) error {
		var cartID int64
		err := q.QueryRowContext(ctx, `
			INSERT INTO carts (user_id)
			VALUES ($1)
			ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING id
		`, userID).Scan(&cartID)
		if err != nil {
			return err
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO cart_items (cart_id, product_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
		`, cartID, productID, quantity)
		return err
	})
}

// RemoveCartItem takes the same cart row lock a checkout holds, so an item
// cannot disappear between a checkout's snapshot and its cart clear.
func (s *Store) RemoveCartItem(ctx context.Context, userID string, productID int64) error {
	return s.withinCartTx(ctx, func(q querier) error {
		var cartID int64
		err := q.QueryRowContext(ctx, `
			SELECT id
			FROM carts
			WHERE user_id = $1
			FOR UPDATE
		`, userID).Scan(&cartID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return err
		}

		result, err := q.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE cart_id = $1 AND product_id = $2
		`, cartID, productID)
		if err != nil {
			return err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if rowsAffected == 0 {
			return storage.ErrNotFound
		}

		return nil
	})
}

func (s *Store) withinCartTx(ctx context.Context, fn func(q querier) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(sqlTx); err != nil {
		return classify(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

func (s *Store) cartID(ctx context.Context, userID string) (int64, error) {
	var cartID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id
		FROM carts
		WHERE user_id = $1
	`, userID).Scan(&cartID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, err
	}
	return cartID, nil
}
