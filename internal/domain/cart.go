package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
}

type CartItem struct {
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// SnapshotEntry joins a cart item with its product's price and stock as read
// at one instant. It is never persisted.
type SnapshotEntry struct {
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	StockQuantity int             `json:"stock_quantity"`
	AddedAt       time.Time       `json:"added_at"`
}

func (e SnapshotEntry) Subtotal() decimal.Decimal {
	return e.UnitPrice.Mul(decimal.NewFromInt(int64(e.Quantity)))
}

// CartSnapshot is the point-in-time view of a cart, entries in insertion order.
type CartSnapshot struct {
	CartID  int64           `json:"cart_id"`
	UserID  string          `json:"user_id"`
	Entries []SnapshotEntry `json:"entries"`
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.Entries) == 0
}

// Lines captures the snapshot's current prices as order lines.
func (s CartSnapshot) Lines() []OrderLine {
	lines := make([]OrderLine, 0, len(s.Entries))
	for _, e := range s.Entries {
		lines = append(lines, OrderLine{
			ProductID: e.ProductID,
			Quantity:  e.Quantity,
			UnitPrice: e.UnitPrice,
		})
	}
	return lines
}

func (s CartSnapshot) Total() decimal.Decimal {
	return OrderTotal(s.Lines())
}
