package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

var ErrPublisherUnavailable = errors.New("publisher unavailable")

// BreakerPublisher stops calling a failing publisher for a cool-down period
// so that a dead broker costs callers nothing but an immediate error.
type BreakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker[struct{}]
}

type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:                name,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

func NewBreakerPublisher(next Publisher, settings BreakerSettings, logger *slog.Logger) *BreakerPublisher {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("publisher circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &BreakerPublisher{next: next, cb: cb}
}

func (p *BreakerPublisher) Publish(ctx context.Context, key string, event any) error {
	_, err := p.cb.Execute(func() (struct{}, error) {
		return struct{}{}, p.next.Publish(ctx, key, event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrPublisherUnavailable, err)
	}
	return err
}
