// Package checkout converts a user's cart into a pending order in a single
// unit of work.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
)

var tracer = otel.Tracer("storefront/checkout")

// Publisher announces committed orders. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Request struct {
	UserID          string
	ShippingAddress string
}

type Service struct {
	store     storage.Store
	publisher Publisher
	metrics   *checkoutMetrics
	logger    *slog.Logger
}

// NewService builds the checkout coordinator. publisher may be nil, in which
// case no order events are emitted.
func NewService(store storage.Store, publisher Publisher, logger *slog.Logger) (*Service, error) {
	m, err := newCheckoutMetrics(otel.Meter("storefront/checkout"))
	if err != nil {
		return nil, fmt.Errorf("create checkout metrics: %w", err)
	}

	return &Service{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Checkout reads the cart snapshot, pre-validates it, writes the order,
// conditionally decrements stock for every line in snapshot order and clears
// the cart. Either all of it commits or none of it does. Failures are
// classified by Kind.
func (s *Service) Checkout(ctx context.Context, req Request) (domain.OrderReceipt, error) {
	ctx, span := tracer.Start(ctx, "checkout")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", req.UserID))

	start := time.Now()
	receipt, lines, err := s.checkout(ctx, req)
	kind := Kind(err)
	s.metrics.record(ctx, kind, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		if kind == KindTransactionFailed {
			s.logger.Error("checkout failed", "error", err, "user_id", req.UserID)
		} else {
			s.logger.Info("checkout rejected", "kind", kind, "error", err, "user_id", req.UserID)
		}
		return domain.OrderReceipt{}, err
	}

	span.SetAttributes(attribute.String("order.id", receipt.OrderID))
	s.logger.Info("checkout completed",
		"order_id", receipt.OrderID,
		"user_id", req.UserID,
		"total", receipt.Total.StringFixed(2),
		"items", len(lines),
	)

	s.publish(ctx, req.UserID, receipt, lines)
	return receipt, nil
}

func (s *Service) checkout(ctx context.Context, req Request) (domain.OrderReceipt, []domain.OrderLine, error) {
	address := strings.TrimSpace(req.ShippingAddress)
	if address == "" {
		return domain.OrderReceipt{}, nil, ErrInvalidAddress
	}

	var (
		receipt domain.OrderReceipt
		lines   []domain.OrderLine
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		snap, err := tx.CartSnapshot(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrCartNotFound
			}
			return stepFailed("read cart snapshot", err)
		}

		if err := Validate(snap); err != nil {
			return err
		}

		lines = snap.Lines()
		total := snap.Total()

		receipt, err = tx.CreateOrder(ctx, domain.NewOrder{
			UserID:          req.UserID,
			ShippingAddress: address,
			Lines:           lines,
		})
		if err != nil {
			return stepFailed("create order", err)
		}
		if !receipt.Total.Equal(total) {
			return fmt.Errorf("%w: order total %s does not match snapshot total %s",
				ErrTransactionFailed, receipt.Total, total)
		}

		for _, line := range lines {
			applied, err := tx.DecrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return stepFailed(fmt.Sprintf("decrement stock for product %d", line.ProductID), err)
			}
			if !applied {
				return fmt.Errorf("%w: product %d no longer has %d in stock",
					ErrStockConflict, line.ProductID, line.Quantity)
			}
		}

		if err := tx.ClearCart(ctx, snap.CartID); err != nil {
			return stepFailed("clear cart", err)
		}

		return nil
	})
	if err != nil {
		if Kind(err) != KindTransactionFailed || errors.Is(err, ErrTransactionFailed) {
			return domain.OrderReceipt{}, nil, err
		}
		return domain.OrderReceipt{}, nil, stepFailed("commit", err)
	}

	return receipt, lines, nil
}

// stepFailed wraps a storage error. Backend-detected contention is a stock
// conflict; everything else is a transaction failure.
func stepFailed(step string, err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%w: %s: %w", ErrStockConflict, step, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransactionFailed, step, err)
}

func (s *Service) publish(ctx context.Context, userID string, receipt domain.OrderReceipt, lines []domain.OrderLine) {
	if s.publisher == nil {
		return
	}

	event := domain.OrderPlacedEvent{
		OrderID:   receipt.OrderID,
		UserID:    userID,
		Total:     receipt.Total,
		Items:     lines,
		Timestamp: receipt.CreatedAt,
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), receipt.OrderID, event); err != nil {
		s.logger.Error("failed to publish order placed event", "error", err, "order_id", receipt.OrderID)
	}
}
