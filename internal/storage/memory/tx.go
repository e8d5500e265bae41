package memory

import (
	"context"
	"fmt"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
)

type tx struct {
	store  *Store
	undo   []func()
	staged []func()
	locked []*cart
}

func (t *tx) holds(c *cart) bool {
	for _, l := range t.locked {
		if l == c {
			return true
		}
	}
	return false
}

func (t *tx) CartSnapshot(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	c, ok := t.store.lookupCart(userID)
	if !ok {
		return domain.CartSnapshot{}, storage.ErrNotFound
	}

	if !t.holds(c) {
		if err := acquire(ctx, c); err != nil {
			return domain.CartSnapshot{}, err
		}
		t.locked = append(t.locked, c)
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.snapshotLocked(c), nil
}

func (t *tx) CreateOrder(ctx context.Context, order domain.NewOrder) (domain.OrderReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderReceipt{}, err
	}

	s := t.store
	receipt := domain.OrderReceipt{
		OrderID:   s.newOrderID(),
		Total:     domain.OrderTotal(order.Lines),
		Status:    domain.OrderStatusPending,
		CreatedAt: s.now(),
	}

	items := make([]domain.OrderItem, 0, len(order.Lines))
	for i, line := range order.Lines {
		items = append(items, domain.OrderItem{
			ID:        int64(i + 1),
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal(),
		})
	}

	record := &orderRecord{order: domain.Order{
		ID:              receipt.OrderID,
		UserID:          order.UserID,
		Total:           receipt.Total,
		ShippingAddress: order.ShippingAddress,
		Status:          receipt.Status,
		CreatedAt:       receipt.CreatedAt,
		UpdatedAt:       receipt.CreatedAt,
		Items:           items,
	}}

	t.staged = append(t.staged, func() {
		s.orderSeq++
		record.seq = s.orderSeq
		for i := range record.order.Items {
			s.nextItemID++
			record.order.Items[i].ID = s.nextItemID
		}
		s.orders[record.order.ID] = record
		s.userOrders[order.UserID] = append(s.userOrders[order.UserID], record.order.ID)
	})

	return receipt, nil
}

func (t *tx) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok || p.StockQuantity-s.reserved[productID] < quantity {
		return false, nil
	}

	s.reserved[productID] += quantity
	t.undo = append(t.undo, func() {
		s.unreserveLocked(productID, quantity)
	})
	t.staged = append(t.staged, func() {
		s.unreserveLocked(productID, quantity)
		if p, ok := s.products[productID]; ok {
			p.StockQuantity -= quantity
		}
	})

	return true, nil
}

func (t *tx) ClearCart(ctx context.Context, cartID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := t.store
	s.mu.Lock()
	c, ok := s.cartsByID[cartID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("clear cart %d: %w", cartID, storage.ErrNotFound)
	}

	t.staged = append(t.staged, func() {
		c.items = nil
	})
	return nil
}

func (t *tx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, apply := range t.staged {
		apply()
	}
	t.staged, t.undo = nil, nil
}

func (t *tx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.staged, t.undo = nil, nil
}

func (t *tx) release() {
	for _, c := range t.locked {
		release(c)
	}
	t.locked = nil
}
