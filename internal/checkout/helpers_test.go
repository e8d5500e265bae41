package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
	"github.com/joao-fontenele/storefront/internal/storage/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newService(t *testing.T, store storage.Store, publisher Publisher) *Service {
	t.Helper()
	svc, err := NewService(store, publisher, discardLogger())
	require.NoError(t, err)
	return svc
}

func addToCart(t *testing.T, store *memory.Store, userID string, productID int64, quantity int) {
	t.Helper()
	require.NoError(t, store.SetCartItem(context.Background(), userID, productID, quantity))
}

func stockOf(t *testing.T, store *memory.Store, productID int64) int {
	t.Helper()
	p, ok := store.Product(productID)
	require.True(t, ok, "product %d missing", productID)
	return p.StockQuantity
}

func orderCount(t *testing.T, store *memory.Store, userID string) int {
	t.Helper()
	_, total, err := store.ListOrders(context.Background(), userID, 100, 0)
	require.NoError(t, err)
	return total
}

// hookStore lets a test intercept individual steps of a unit of work.
type hookStore struct {
	storage.Store
	beforeDecrement func(ctx context.Context) error
	beforeCreate    func(ctx context.Context) error
	beforeClear     func(ctx context.Context) error
	clearErr        error
}

func (s *hookStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, &hookTx{Tx: tx, store: s})
	})
}

type hookTx struct {
	storage.Tx
	store *hookStore
}

func (t *hookTx) CreateOrder(ctx context.Context, order domain.NewOrder) (domain.OrderReceipt, error) {
	if t.store.beforeCreate != nil {
		if err := t.store.beforeCreate(ctx); err != nil {
			return domain.OrderReceipt{}, err
		}
	}
	return t.Tx.CreateOrder(ctx, order)
}

func (t *hookTx) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	if t.store.beforeDecrement != nil {
		if err := t.store.beforeDecrement(ctx); err != nil {
			return false, err
		}
	}
	return t.Tx.DecrementStock(ctx, productID, quantity)
}

func (t *hookTx) ClearCart(ctx context.Context, cartID int64) error {
	if t.store.beforeClear != nil {
		if err := t.store.beforeClear(ctx); err != nil {
			return err
		}
	}
	if t.store.clearErr != nil {
		return t.store.clearErr
	}
	return t.Tx.ClearCart(ctx, cartID)
}

// barrier blocks callers until n calls have arrived. Later calls pass
// straight through.
func barrier(n int) func(ctx context.Context) error {
	var arrived atomic.Int32
	done := make(chan struct{})

	return func(ctx context.Context) error {
		if arrived.Add(1) == int32(n) {
			close(done)
		}
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderPlacedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if e, ok := event.(domain.OrderPlacedEvent); ok {
		p.events = append(p.events, e)
	}
	return nil
}

var errBoom = errors.New("boom")

func decimalInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

func errConflictForTest() error {
	return fmt.Errorf("pq: could not serialize access: %w", storage.ErrConflict)
}
