package checkout

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type checkoutMetrics struct {
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

func newCheckoutMetrics(meter metric.Meter) (*checkoutMetrics, error) {
	attempts, err := meter.Int64Counter("checkout.attempts",
		metric.WithDescription("Checkout attempts by outcome."),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("checkout.duration",
		metric.WithDescription("Duration of the checkout unit of work."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &checkoutMetrics{attempts: attempts, duration: duration}, nil
}

func (m *checkoutMetrics) record(ctx context.Context, kind ErrorKind, elapsed time.Duration) {
	outcome := string(kind)
	if outcome == "" {
		outcome = "ok"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.attempts.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
