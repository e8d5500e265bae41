// Package memory is a single-process implementation of the storage
// contracts. A stock decrement is a compare-and-swap against the committed
// stock minus what open units of work have reserved. The reservation is
// journaled so a rollback releases it in reverse; the decrement itself, order
// inserts and cart clears are staged and only become visible at commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
)

type cart struct {
	id     int64
	userID string
	items  []domain.CartItem
	// sem is held by whichever unit of work or cart mutation owns the cart.
	sem chan struct{}
}

type orderRecord struct {
	order domain.Order
	seq   int64
}

type Store struct {
	mu         sync.Mutex
	products   map[int64]*domain.Product
	reserved   map[int64]int
	carts      map[string]*cart
	cartsByID  map[int64]*cart
	orders     map[string]*orderRecord
	userOrders map[string][]string
	nextCartID int64
	nextItemID int64
	orderSeq   int64
	now        func() time.Time
}

var (
	_ storage.Store       = (*Store)(nil)
	_ storage.OrderReader = (*Store)(nil)
	_ storage.CartStore   = (*Store)(nil)
)

func New() *Store {
	return &Store{
		products:   make(map[int64]*domain.Product),
		reserved:   make(map[int64]int),
		carts:      make(map[string]*cart),
		cartsByID:  make(map[int64]*cart),
		orders:     make(map[string]*orderRecord),
		userOrders: make(map[string][]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// PutProduct creates or replaces a catalog entry.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
}

func (s *Store) Product(id int64) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, false
	}
	return *p, true
}

func (s *Store) SetPrice(id int64, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		p.Price = price
	}
}

func (s *Store) DeleteProduct(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
	for _, c := range s.carts {
		c.items = removeItem(c.items, id)
	}
}

// CreateCart returns the user's cart id, creating the cart if needed.
func (s *Store) CreateCart(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.carts[userID]; ok {
		return c.id
	}
	s.nextCartID++
	c := &cart{id: s.nextCartID, userID: userID, sem: make(chan struct{}, 1)}
	s.carts[userID] = c
	s.cartsByID[c.id] = c
	return c.id
}

// CartItems returns a copy of the raw cart contents, inactive products included.
func (s *Store) CartItems(userID string) []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		return nil
	}
	return append([]domain.CartItem(nil), c.items...)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{store: s}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}

	if err := ctx.Err(); err != nil {
		t.rollback()
		return err
	}

	t.commit()
	return nil
}

func (s *Store) lookupCart(userID string) (*cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	return c, ok
}

func acquire(ctx context.Context, c *cart) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func release(c *cart) {
	<-c.sem
}

// snapshotLocked must be called with s.mu held.
func (s *Store) snapshotLocked(c *cart) domain.CartSnapshot {
	snap := domain.CartSnapshot{CartID: c.id, UserID: c.userID, Entries: []domain.SnapshotEntry{}}
	for _, item := range c.items {
		p, ok := s.products[item.ProductID]
		if !ok || !p.IsActive {
			continue
		}
		snap.Entries = append(snap.Entries, domain.SnapshotEntry{
			ProductID:     p.ID,
			ProductName:   p.Name,
			Quantity:      item.Quantity,
			UnitPrice:     p.Price,
			StockQuantity: p.StockQuantity,
			AddedAt:       item.AddedAt,
		})
	}
	return snap
}

// unreserveLocked must be called with s.mu held.
func (s *Store) unreserveLocked(productID int64, quantity int) {
	s.reserved[productID] -= quantity
	if s.reserved[productID] <= 0 {
		delete(s.reserved, productID)
	}
}

func removeItem(items []domain.CartItem, productID int64) []domain.CartItem {
	out := items[:0]
	for _, item := range items {
		if item.ProductID != productID {
			out = append(out, item)
		}
	}
	return out
}

func (s *Store) newOrderID() string {
	return uuid.New().String()
}

func sortOrders(records []*orderRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].order.CreatedAt.Equal(records[j].order.CreatedAt) {
			return records[i].order.CreatedAt.After(records[j].order.CreatedAt)
		}
		return records[i].seq > records[j].seq
	})
}
