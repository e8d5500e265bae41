package checkout

import "github.com/joao-fontenele/storefront/internal/domain"

// Validate pre-screens a snapshot against the stock it was read with. A nil
// result is advisory only: stock can still be taken before the decrement.
func Validate(snap domain.CartSnapshot) error {
	if snap.IsEmpty() {
		return ErrEmptyCart
	}

	var shortfalls []Shortfall
	for _, e := range snap.Entries {
		if e.Quantity > e.StockQuantity {
			shortfalls = append(shortfalls, Shortfall{
				ProductID:   e.ProductID,
				ProductName: e.ProductName,
				Requested:   e.Quantity,
				Available:   max(e.StockQuantity, 0),
			})
		}
	}

	if len(shortfalls) > 0 {
		return &InsufficientStockError{Shortfalls: shortfalls}
	}

	return nil
}
