package memory

import (
	"context"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
)

func (s *Store) CartView(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.CartSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		return domain.CartSnapshot{}, storage.ErrNotFound
	}
	return s.snapshotLocked(c), nil
}

func (s *Store) SetCartItem(ctx context.Context, userID string, productID int64, quantity int) error {
	s.CreateCart(userID)
	c, ok := s.lookupCart(userID)
	if !ok {
		return storage.ErrNotFound
	}

	if err := acquire(ctx, c); err != nil {
		return err
	}
	defer release(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok || !p.IsActive {
		return storage.ErrNotFound
	}

	for i := range c.items {
		if c.items[i].ProductID == productID {
			c.items[i].Quantity = quantity
			return nil
		}
	}

	c.items = append(c.items, domain.CartItem{
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   s.now(),
	})
	return nil
}

func (s *Store) RemoveCartItem(ctx context.Context, userID string, productID int64) error {
	c, ok := s.lookupCart(userID)
	if !ok {
		return storage.ErrNotFound
	}

	if err := acquire(ctx, c); err != nil {
		return err
	}
	defer release(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(c.items)
	c.items = removeItem(c.items, productID)
	if len(c.items) == before {
		return storage.ErrNotFound
	}
	return nil
}
