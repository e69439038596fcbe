package k8s

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kubilitics/kubeluma/internal/pkg/metrics"
	"github.com/kubilitics/kubeluma/internal/pkg/tracing"
)

var (
	// ErrPodNotFound is returned when the requested pod does not exist.
	ErrPodNotFound = errors.New("pod not found")
	// ErrMetricsUnavailable is returned when the cluster serves no metrics.k8s.io API.
	ErrMetricsUnavailable = errors.New("metrics API unavailable")
)

// call runs one unary cluster operation behind the rate limiter, circuit breaker,
// per-call timeout and retry policy, and records latency, errors and a span.
func call[T any](ctx context.Context, c *Client, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	ctx, span := tracing.StartSpan(ctx, "k8s."+op, attribute.String("k8s.context", c.Context))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.GatewayRequestDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if err := c.waitRateLimit(ctx); err != nil {
		return zero, err
	}

	var out T
	err := c.circuitBreaker.Execute(ctx, func() error {
		ctx, cancel := c.withTimeout(ctx)
		defer cancel()
		var fnErr error
		out, fnErr = doWithRetryValue(ctx, defaultRetryAttempts, func() (T, error) {
			return fn(ctx)
		})
		return fnErr
	})
	c.updateHealth(err)
	if err != nil {
		metrics.GatewayErrorsTotal.WithLabelValues(op).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}
	return out, nil
}
