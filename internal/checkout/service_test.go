package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
	"github.com/joao-fontenele/storefront/internal/storage/memory"
)

func seededStore() *memory.Store {
	store := memory.New()
	store.PutProduct(domain.Product{ID: 1, Name: "Widget", Price: price("10.00"), StockQuantity: 5, IsActive: true})
	store.PutProduct(domain.Product{ID: 2, Name: "Gadget", Price: price("5.00"), StockQuantity: 1, IsActive: true})
	return store
}

func TestCheckout_Success(t *testing.T) {
	store := seededStore()
	publisher := &recordingPublisher{}
	svc := newService(t, store, publisher)

	addToCart(t, store, "alice", 1, 2)
	addToCart(t, store, "alice", 2, 1)

	receipt, err := svc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: " 1 Main St "})
	require.NoError(t, err)

	assert.NotEmpty(t, receipt.OrderID)
	assert.Equal(t, "25.00", receipt.Total.StringFixed(2))
	assert.Equal(t, domain.OrderStatusPending, receipt.Status)
	assert.False(t, receipt.CreatedAt.IsZero())

	assert.Equal(t, 3, stockOf(t, store, 1))
	assert.Equal(t, 0, stockOf(t, store, 2))
	assert.Empty(t, store.CartItems("alice"))

	order, err := store.GetOrder(context.Background(), "alice", receipt.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", order.ShippingAddress)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(1), order.Items[0].ProductID)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.True(t, order.Items[0].UnitPrice.Equal(price("10.00")))

	require.Len(t, publisher.events, 1)
	assert.Equal(t, receipt.OrderID, publisher.events[0].OrderID)
	assert.Equal(t, "alice", publisher.events[0].UserID)
	assert.True(t, publisher.events[0].Total.Equal(price("25.00")))
	assert.Len(t, publisher.events[0].Items, 2)
}

func TestCheckout_InsufficientStock(t *testing.T) {
	store := memory.New()
	store.PutProduct(domain.Product{ID: 1, Name: "A", Price: price("3.00"), StockQuantity: 5, IsActive: true})
	store.PutProduct(domain.Product{ID: 2, Name: "B", Price: price("4.00"), StockQuantity: 1, IsActive: true})
	svc := newService(t, store, nil)

	addToCart(t, store, "alice", 1, 7)
	addToCart(t, store, "alice", 2, 1)

	_, err := svc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: "1 Main St"})
	require.Error(t, err)
	assert.Equal(t, KindInsufficientStock, Kind(err))
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, []Shortfall{{ProductID: 1, ProductName: "A", Requested: 7, Available: 5}}, Shortfalls(err))

	assert.Equal(t, 5, stockOf(t, store, 1))
	assert.Equal(t, 1, stockOf(t, store, 2))
	assert.Len(t, store.CartItems("alice"), 2)
	assert.Zero(t, orderCount(t, store, "alice"))
}

func TestCheckout_InsufficientStockLeavesCartUntouched(t *testing.T) {
	store := memory.New()
	store.PutProduct(domain.Product{ID: 1, Name: "A", Price: price("10.00"), StockQuantity: 5, IsActive: true})
	store.PutProduct(domain.Product{ID: 2, Name: "B", Price: price("5.00"), StockQuantity: 0, IsActive: true})
	svc := newService(t, store, nil)

	addToCart(t, store, "alice", 1, 2)
	addToCart(t, store, "alice", 2, 1)
	before := store.CartItems("alice")

	_, err := svc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: "1 Main St"})
	require.Error(t, err)
	assert.Equal(t, KindInsufficientStock, Kind(err))
	assert.Equal(t, []Shortfall{{ProductID: 2, ProductName: "B", Requested: 1, Available: 0}}, Shortfalls(err))

	assert.Equal(t, 5, stockOf(t, store, 1))
	assert.Equal(t, 0, stockOf(t, store, 2))
	assert.Equal(t, before, store.CartItems("alice"))
	assert.Zero(t, orderCount(t, store, "alice"))
}

func TestCheckout_EmptyCart(t *testing.T) {
	t.Run("no items", func(t *testing.T) {
		store := seededStore()
		svc := newService(t, store, nil)

		addToCart(t, store, "alice", 1, 1)
		require.NoError(t, store.RemoveCartItem(context.Background(), "alice", 1))

		_, err := svc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: "1 Main St"})
		assert.Equal(t, KindEmptyCart, Kind(err))
		assert.Zero(t, orderCount(t, store, "alice"))
	})

	t.Run("only inactive products", func(t *testing.T) {
		store := seededStore()
		svc := newService(t, store, nil)

		addToCart(t, store, "alice", 1, 1)
		store.PutProduct(domain.Product{ID: 1, Name: "Widget", Price: price("10.00"), StockQuantity: 5, IsActive: false})

		_, err := svc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: "1 Main St"})
		assert.Equal(t, KindEmptyCart, Kind(err))
		assert.Equal(t, 5, stockOf(t, store, 1))
		assert.Len(t, store.CartItems("alice"), 1, "inactive items stay in the cart")
	})
}

func TestCheckout_InactiveItemsAreSkipped(t *testing.T) {
	store := seededStore()
	svc := newService(t, store, nil)

	addToCart(t, store, "alice", 1, 1)
	addToCart(t, store, "alice", 2, 1)
	store.PutProduct(domain.Product{ID: 2, Name: "Gadget", Price: price("5.00"), StockQuantity: 1, IsActive: false})

	receipt, err := svc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, "10.00", receipt.Total.StringFixed(2))
	assert.Equal(t, 1, stockOf(t, store, 2))
}

func TestCheckout_RequestValidation(t *testing.T) {
	store := seededStore()
	svc := newService(t, store, nil)

	_, err := svc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: "   "})
	assert.Equal(t, KindInvalidRequest, Kind(err))

	_, err = svc.Checkout(context.Background(), Request{UserID: "nobody", ShippingAddress: "1 Main St"})
	assert.Equal(t, KindNotFound, Kind(err))
}

func TestCheckout_ConcurrentConflict(t *testing.T) {
	store := memory.New()
	store.PutProduct(domain.Product{ID: 1, Name: "Widget", Price: price("10.00"), StockQuantity: 3, IsActive: true})

	hooked := &hookStore{Store: store, beforeDecrement: barrier(2)}
	svc := newService(t, hooked, nil)

	addToCart(t, store, "alice", 1, 2)
	addToCart(t, store, "bob", 1, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []string{"alice", "bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Checkout(ctx, Request{UserID: user, ShippingAddress: "1 Main St"})
		}()
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch Kind(err) {
		case "":
			succeeded++
		case KindStockConflict:
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	assert.Equal(t, 1, stockOf(t, store, 1))
	assert.Equal(t, 1, orderCount(t, store, "alice")+orderCount(t, store, "bob"))
}

func TestCheckout_OpenUnitOfWorkDoesNotLeakStock(t *testing.T) {
	store := memory.New()
	store.PutProduct(domain.Product{ID: 1, Name: "Widget", Price: price("7.00"), StockQuantity: 3, IsActive: true})
	addToCart(t, store, "alice", 1, 2)
	addToCart(t, store, "bob", 1, 2)

	bobSvc := newService(t, store, nil)
	var bobErr error
	hooked := &hookStore{Store: store, beforeClear: func(ctx context.Context) error {
		_, bobErr = bobSvc.Checkout(ctx, Request{UserID: "bob", ShippingAddress: "2 Side St"})
		return errBoom
	}}
	aliceSvc := newService(t, hooked, nil)

	_, err := aliceSvc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: "1 Main St"})
	assert.Equal(t, KindTransactionFailed, Kind(err))

	require.Error(t, bobErr)
	assert.Equal(t, KindStockConflict, Kind(bobErr), "bob must not be told the stock is gone: %v", bobErr)
	assert.Empty(t, Shortfalls(bobErr))
	assert.Equal(t, 3, stockOf(t, store, 1))

	_, err = bobSvc.Checkout(context.Background(), Request{UserID: "bob", ShippingAddress: "2 Side St"})
	require.NoError(t, err)
	assert.Equal(t, 1, stockOf(t, store, 1))
	assert.Len(t, store.CartItems("alice"), 1)
}

func TestCheckout_SameUserTwice(t *testing.T) {
	store := seededStore()
	svc := newService(t, store, nil)

	addToCart(t, store, "alice", 1, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: "1 Main St"})
		}()
	}
	wg.Wait()

	kinds := []ErrorKind{Kind(errs[0]), Kind(errs[1])}
	assert.ElementsMatch(t, []ErrorKind{"", KindEmptyCart}, kinds)
	assert.Equal(t, 4, stockOf(t, store, 1))
	assert.Equal(t, 1, orderCount(t, store, "alice"))
}

func TestCheckout_PriceChangeAfterOrder(t *testing.T) {
	store := seededStore()
	svc := newService(t, store, nil)

	addToCart(t, store, "alice", 1, 2)
	addToCart(t, store, "alice", 2, 1)

	receipt, err := svc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	store.SetPrice(1, price("12.00"))

	order, err := store.GetOrder(context.Background(), "alice", receipt.OrderID)
	require.NoError(t, err)
	assert.True(t, order.Total.Equal(price("25.00")))
	assert.True(t, order.Items[0].UnitPrice.Equal(price("10.00")))
	require.NotNil(t, order.Items[0].Product)
	assert.True(t, order.Items[0].Product.Price.Equal(price("12.00")))
}

func TestCheckout_FailureLeavesNoTrace(t *testing.T) {
	tests := []struct {
		name  string
		store func(*memory.Store) *hookStore
		kind  ErrorKind
	}{
		{
			name: "clear cart fails",
			store: func(s *memory.Store) *hookStore {
				return &hookStore{Store: s, clearErr: errBoom}
			},
			kind: KindTransactionFailed,
		},
		{
			name: "order insert fails",
			store: func(s *memory.Store) *hookStore {
				return &hookStore{Store: s, beforeCreate: func(context.Context) error { return errBoom }}
			},
			kind: KindTransactionFailed,
		},
		{
			name: "backend reports contention",
			store: func(s *memory.Store) *hookStore {
				return &hookStore{Store: s, beforeCreate: func(context.Context) error { return storage.ErrConflict }}
			},
			kind: KindStockConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore()
			svc := newService(t, tt.store(store), nil)

			addToCart(t, store, "alice", 1, 2)
			addToCart(t, store, "alice", 2, 1)

			for attempt := 0; attempt < 2; attempt++ {
				_, err := svc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: "1 Main St"})
				require.Error(t, err)
				assert.Equal(t, tt.kind, Kind(err))

				assert.Equal(t, 5, stockOf(t, store, 1))
				assert.Equal(t, 1, stockOf(t, store, 2))
				assert.Len(t, store.CartItems("alice"), 2)
				assert.Zero(t, orderCount(t, store, "alice"))
			}
		})
	}
}

func TestCheckout_Cancellation(t *testing.T) {
	store := seededStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hooked := &hookStore{Store: store, beforeDecrement: func(context.Context) error {
		cancel()
		return nil
	}}
	svc := newService(t, hooked, nil)

	addToCart(t, store, "alice", 1, 2)

	_, err := svc.Checkout(ctx, Request{UserID: "alice", ShippingAddress: "1 Main St"})
	require.Error(t, err)
	assert.Equal(t, KindTransactionFailed, Kind(err))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 5, stockOf(t, store, 1))
	assert.Len(t, store.CartItems("alice"), 1)
	assert.Zero(t, orderCount(t, store, "alice"))
}

func TestCheckout_PublishFailureDoesNotFailCheckout(t *testing.T) {
	store := seededStore()
	svc := newService(t, store, &recordingPublisher{err: errBoom})

	addToCart(t, store, "alice", 1, 1)

	receipt, err := svc.Checkout(context.Background(), Request{UserID: "alice", ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, "10.00", receipt.Total.StringFixed(2))
	assert.Equal(t, 1, orderCount(t, store, "alice"))
}
