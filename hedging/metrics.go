package hedging

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the metric instruments for hedged dispatches.
type metrics struct {
	// dispatchDuration measures end-to-end dispatch duration in seconds,
	// from dispatch start to winner settlement or final failure.
	dispatchDuration metric.Float64Histogram

	// attempts counts attempts actually started, by ordinal
	// (0 = original, 1.. = hedges in firing order).
	attempts metric.Int64Counter

	// wins counts dispatches won per attempt ordinal. A high share of
	// ordinal 0 wins means the hedge delay is well past typical latency.
	wins metric.Int64Counter

	// exhausted counts dispatches where every attempt failed.
	exhausted metric.Int64Counter

	// budgetDenied counts hedge attempts skipped by the hedge budget.
	budgetDenied metric.Int64Counter
}

// newMetrics creates and registers metric instruments.
func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.dispatchDuration, err = meter.Float64Histogram(
		"hedging.dispatch.duration",
		metric.WithDescription("Duration of hedged dispatches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	m.attempts, err = meter.Int64Counter(
		"hedging.attempts",
		metric.WithDescription("Number of attempts started, by ordinal"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	m.wins, err = meter.Int64Counter(
		"hedging.wins",
		metric.WithDescription("Number of dispatches won, by winning attempt ordinal"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	m.exhausted, err = meter.Int64Counter(
		"hedging.exhausted",
		metric.WithDescription("Number of dispatches where every attempt failed"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	m.budgetDenied, err = meter.Int64Counter(
		"hedging.budget_denied",
		metric.WithDescription("Number of hedge attempts skipped by the hedge budget"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// recordDispatchDuration records the end-to-end duration of a dispatch.
func (m *metrics) recordDispatchDuration(
	ctx context.Context,
	duration time.Duration,
	attrs []attribute.KeyValue,
) {
	if m == nil || m.dispatchDuration == nil {
		return
	}
	m.dispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// recordAttempt records an attempt starting.
func (m *metrics) recordAttempt(ctx context.Context, attrs []attribute.KeyValue, ordinal int) {
	if m == nil || m.attempts == nil {
		return
	}
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attrs...)
	allAttrs = append(allAttrs, attribute.Int("hedge.ordinal", ordinal))
	m.attempts.Add(ctx, 1, metric.WithAttributes(allAttrs...))
}

// recordWin records which attempt won the race.
func (m *metrics) recordWin(ctx context.Context, attrs []attribute.KeyValue, ordinal int) {
	if m == nil || m.wins == nil {
		return
	}
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attrs...)
	allAttrs = append(allAttrs, attribute.Int("hedge.ordinal", ordinal))
	m.wins.Add(ctx, 1, metric.WithAttributes(allAttrs...))
}

// recordExhausted records a dispatch where every attempt failed.
func (m *metrics) recordExhausted(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.exhausted == nil {
		return
	}
	m.exhausted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// recordBudgetDenied records a hedge skipped by the budget.
func (m *metrics) recordBudgetDenied(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.budgetDenied == nil {
		return
	}
	m.budgetDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}
