package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockConflict     = errors.New("stock changed during checkout")
	ErrTransactionFailed = errors.New("checkout transaction failed")
	ErrCartNotFound      = errors.New("cart not found")
	ErrInvalidAddress    = errors.New("shipping address is required")
)

// ErrorKind is the machine-readable reason a checkout did not complete.
type ErrorKind string

const (
	KindEmptyCart         ErrorKind = "EmptyCart"
	KindInsufficientStock ErrorKind = "InsufficientStock"
	KindStockConflict     ErrorKind = "StockConflict"
	KindTransactionFailed ErrorKind = "TransactionFailed"
	KindNotFound          ErrorKind = "NotFound"
	KindInvalidRequest    ErrorKind = "InvalidRequest"
)

// Shortfall reports a cart line the current stock cannot cover.
type Shortfall struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("product %d requested %d available %d", s.ProductID, s.Requested, s.Available))
	}
	return ErrInsufficientStock.Error() + ": " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Kind classifies err. It returns an empty kind for a nil error and
// KindTransactionFailed for anything it does not recognize.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyCart):
		return KindEmptyCart
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrStockConflict):
		return KindStockConflict
	case errors.Is(err, ErrCartNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidAddress):
		return KindInvalidRequest
	default:
		return KindTransactionFailed
	}
}

// Shortfalls extracts the shortfall list from an InsufficientStock error.
func Shortfalls(err error) []Shortfall {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr.Shortfalls
	}
	return nil
}
