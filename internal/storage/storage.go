// Package storage defines the contracts between the checkout core and the
// backends that persist carts, inventory and orders.
package storage

import (
	"context"
	"errors"

	"github.com/joao-fontenele/storefront/internal/domain"
)

var (
	// ErrNotFound is returned when a cart, product or order does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when the backend aborted a unit of work because
	// of contention with a concurrent one (deadlock, serialization failure).
	ErrConflict = errors.New("concurrent update conflict")
)

// Tx is the set of operations available inside one unit of work. Every
// method observes and mutates state through the same transactional context.
type Tx interface {
	// CartSnapshot joins the user's cart items with current product price and
	// stock. Items whose product is inactive or deleted are left out. Returns
	// ErrNotFound when the user has no cart.
	CartSnapshot(ctx context.Context, userID string) (domain.CartSnapshot, error)

	// CreateOrder persists a pending order and one item per line.
	CreateOrder(ctx context.Context, order domain.NewOrder) (domain.OrderReceipt, error)

	// DecrementStock subtracts quantity from the product's stock only if the
	// current stock is at least quantity, and reports whether it applied.
	DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)

	// ClearCart deletes every item of the cart.
	ClearCart(ctx context.Context, cartID int64) error
}

// Store runs units of work. fn's effects are committed only if fn returns
// nil and ctx is still live at commit; otherwise none of them survive.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// OrderReader is the read side used by the order query service.
type OrderReader interface {
	ListOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int, error)
	// GetOrder returns ErrNotFound when the order does not exist or belongs to
	// another user.
	GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error)
	CountOrdersByStatus(ctx context.Context, userID string) (map[domain.OrderStatus]int, error)
}

// CartStore is the cart collaborator's surface, used outside checkout.
type CartStore interface {
	CartView(ctx context.Context, userID string) (domain.CartSnapshot, error)
	SetCartItem(ctx context.Context, userID string, productID int64, quantity int) error
	RemoveCartItem(ctx context.Context, userID string, productID int64) error
}
