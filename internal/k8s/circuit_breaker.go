package k8s

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubeluma/internal/pkg/metrics"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open: cluster API unavailable")

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // Normal operation
	StateOpen                                // Failing fast
	StateHalfOpen                            // Probing for recovery
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails cluster calls fast after failureThreshold consecutive retryable
// failures, for openDuration. A single trial call is let through afterwards.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration     time.Duration
	halfOpenMaxCalls int
	label            string
	log              *zap.Logger
	now              func() time.Time

	state             CircuitBreakerState
	failureCount      int
	openedAt          time.Time
	halfOpenCallCount int
}

// NewCircuitBreaker creates a breaker that opens after 5 failures for 30 seconds.
// label is the kube context used for metrics.
func NewCircuitBreaker(label string) *CircuitBreaker {
	metrics.CircuitBreakerState.WithLabelValues(label).Set(float64(StateClosed))
	return &CircuitBreaker{
		failureThreshold: 5,
		openDuration:     30 * time.Second,
		halfOpenMaxCalls: 1,
		label:            label,
		log:              zap.NewNop(),
		now:              time.Now,
		state:            StateClosed,
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(next CircuitBreakerState) {
	if cb.state == next {
		return
	}
	metrics.CircuitBreakerTransitionsTotal.WithLabelValues(cb.label, cb.state.String(), next.String()).Inc()
	metrics.CircuitBreakerState.WithLabelValues(cb.label).Set(float64(next))
	cb.log.Info("circuit breaker transition",
		zap.String("from", cb.state.String()),
		zap.String("to", next.String()),
		zap.Int("failures", cb.failureCount))
	cb.state = next
	cb.halfOpenCallCount = 0
}

// allow decides whether a call may proceed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.openDuration {
			return false
		}
		cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.halfOpenCallCount >= cb.halfOpenMaxCalls {
			return false
		}
		cb.halfOpenCallCount++
	}
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failureCount = 0
		cb.setState(StateClosed)
		return
	}
	if !isRetryableError(err) {
		// 404, 403 and friends prove the API server answered.
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
		return
	}

	cb.failureCount++
	metrics.CircuitBreakerFailuresTotal.WithLabelValues(cb.label).Inc()
	if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.openedAt = cb.now()
		cb.setState(StateOpen)
	}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// The caller gave up; that says nothing about the cluster.
		return err
	}
	cb.record(err)
	return err
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the current consecutive failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

var networkErrorMarkers = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"network",
	"unreachable",
	"no such host",
	"dial tcp",
	"i/o timeout",
}

// isRetryableError reports network errors, timeouts, 5xx and 429.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || isRetryable(err) {
		return true
	}
	msg := err.Error()
	for _, m := range networkErrorMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
