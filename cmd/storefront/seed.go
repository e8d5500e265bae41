package main

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage/memory"
)

// seedCatalog mirrors migrations/000002_seed_products so both backends start
// with the same products.
func seedCatalog(store *memory.Store) {
	products := []domain.Product{
		{ID: 1, Name: "Espresso Beans 1kg", Price: decimal.RequireFromString("24.90"), StockQuantity: 120, IsActive: true},
		{ID: 2, Name: "Pour Over Kettle", Price: decimal.RequireFromString("59.00"), StockQuantity: 35, IsActive: true},
		{ID: 3, Name: "Ceramic Dripper", Price: decimal.RequireFromString("18.50"), StockQuantity: 80, IsActive: true},
		{ID: 4, Name: "Paper Filters x100", Price: decimal.RequireFromString("6.00"), StockQuantity: 500, IsActive: true},
		{ID: 5, Name: "Hand Grinder (discontinued)", Price: decimal.RequireFromString("89.00"), StockQuantity: 4, IsActive: false},
	}
	for _, p := range products {
		store.PutProduct(p)
	}
}
