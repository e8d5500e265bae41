package memory

import (
	"context"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
)

func (s *Store) ListOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.userOrders[userID]
	records := make([]*orderRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, s.orders[id])
	}
	sortOrders(records)

	total := len(records)
	if offset >= total {
		return []domain.Order{}, total, nil
	}
	end := min(offset+limit, total)

	orders := make([]domain.Order, 0, end-offset)
	for _, r := range records[offset:end] {
		orders = append(orders, s.hydrateLocked(r))
	}
	return orders, total, nil
}

func (s *Store) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.orders[orderID]
	if !ok || r.order.UserID != userID {
		return nil, storage.ErrNotFound
	}

	order := s.hydrateLocked(r)
	return &order, nil
}

func (s *Store) CountOrdersByStatus(ctx context.Context, userID string) (map[domain.OrderStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.OrderStatus]int)
	for _, id := range s.userOrders[userID] {
		counts[s.orders[id].order.Status]++
	}
	return counts, nil
}

// hydrateLocked copies the stored order and attaches the live product view
// to each item; must be called with s.mu held.
func (s *Store) hydrateLocked(r *orderRecord) domain.Order {
	order := r.order
	order.Items = make([]domain.OrderItem, len(r.order.Items))
	for i, item := range r.order.Items {
		if p, ok := s.products[item.ProductID]; ok {
			item.Product = &domain.ProductSummary{
				ID:       p.ID,
				Name:     p.Name,
				Price:    p.Price,
				IsActive: p.IsActive,
			}
		}
		order.Items[i] = item
	}
	return order
}
