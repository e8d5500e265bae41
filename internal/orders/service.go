package orders

import (
	"context"
	"errors"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

var ErrOrderNotFound = errors.New("order not found")

// Service is the read-only query side over persisted orders.
type Service struct {
	reader storage.OrderReader
}

func NewService(reader storage.OrderReader) *Service {
	return &Service{reader: reader}
}

// List returns one page of the user's orders, newest first. Out-of-range
// page and limit values are clamped.
func (s *Service) List(ctx context.Context, userID string, page, limit int) (domain.OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	orders, total, err := s.reader.ListOrders(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return domain.OrderPage{}, err
	}

	return domain.OrderPage{Orders: orders, Page: page, Limit: limit, Total: total}, nil
}

func (s *Service) Get(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := s.reader.GetOrder(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Service) Stats(ctx context.Context, userID string) (domain.OrderStats, error) {
	counts, err := s.reader.CountOrdersByStatus(ctx, userID)
	if err != nil {
		return domain.OrderStats{}, err
	}

	stats := domain.OrderStats{ByStatus: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}
