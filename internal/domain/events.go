package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderPlacedEvent struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	Items     []OrderLine     `json:"items"`
	Timestamp time.Time       `json:"timestamp"`
}
