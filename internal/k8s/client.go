package k8s

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

const discoveryTimeout = 30 * time.Second

// Client wraps client-go with per-call timeouts, an optional rate limit, retries and a circuit breaker.
// It implements the gateway operations used by the refresh loops.
type Client struct {
	Clientset kubernetes.Interface
	Metrics   metricsclient.Interface
	Config    *rest.Config
	Context   string
	// Timeout for unary cluster API calls; 0 means no timeout. Log streams are never bounded by it.
	Timeout time.Duration

	// disco has its own HTTP timeout since discovery calls take no context.
	disco          discovery.DiscoveryInterface
	limiter        *rate.Limiter
	circuitBreaker *CircuitBreaker
	log            *zap.Logger

	metricsMu  sync.Mutex
	metricsAPI metricsCheck

	lastSuccessTime time.Time
	lastError       error
	healthMu        sync.RWMutex
}

// NewClient creates a client from kubeconfig and context. An empty kubeconfig tries the
// in-cluster config first and then ~/.kube/config.
func NewClient(kubeconfigPath, kubeContext string) (*Client, error) {
	var config *rest.Config
	var err error

	if kubeconfigPath == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			if homeDir, _ := os.UserHomeDir(); homeDir != "" {
				kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
			}
		}
	}

	if config == nil {
		config, err = buildConfigFromFlags(kubeContext, kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	metrics, err := metricsclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}

	discoveryConfig := rest.CopyConfig(config)
	discoveryConfig.Timeout = discoveryTimeout
	disco, err := discovery.NewDiscoveryClientForConfig(discoveryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}

	return &Client{
		Clientset:       clientset,
		Metrics:         metrics,
		Config:          config,
		disco:           disco,
		Context:         kubeContext,
		circuitBreaker:  NewCircuitBreaker(kubeContext),
		log:             zap.NewNop(),
		lastSuccessTime: time.Now(),
	}, nil
}

func buildConfigFromFlags(kubeContext, kubeconfigPath string) (*rest.Config, error) {
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath},
		&clientcmd.ConfigOverrides{
			CurrentContext: kubeContext,
		}).ClientConfig()
}

// NewClientForTest creates a Client over the given clientsets. metrics may be nil.
func NewClientForTest(clientset kubernetes.Interface, metrics metricsclient.Interface) *Client {
	return &Client{
		Clientset:       clientset,
		Metrics:         metrics,
		circuitBreaker:  NewCircuitBreaker(""),
		log:             zap.NewNop(),
		lastSuccessTime: time.Now(),
	}
}

// SetTimeout sets the timeout for unary cluster API calls.
func (c *Client) SetTimeout(d time.Duration) {
	c.Timeout = d
}

// SetLimiter sets a token-bucket rate limiter for outbound calls. Nil disables limiting.
func (c *Client) SetLimiter(l *rate.Limiter) {
	c.limiter = l
}

// SetLogger sets the logger used for breaker transitions and API fallbacks.
func (c *Client) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	c.log = l
	c.circuitBreaker.log = l
}

func (c *Client) discovery() discovery.DiscoveryInterface {
	if c.disco != nil {
		return c.disco
	}
	return c.Clientset.Discovery()
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return ctx, func() {}
}

// updateHealth records the outcome of a call. Errors such as NotFound say nothing about
// connectivity and are not recorded.
func (c *Client) updateHealth(err error) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	switch {
	case err == nil:
		c.lastSuccessTime = time.Now()
		c.lastError = nil
	case isRetryableError(err) || errors.Is(err, ErrCircuitOpen):
		c.lastError = err
	}
}

// HealthStatus returns the health of the cluster connection.
func (c *Client) HealthStatus() (isHealthy bool, lastSuccess time.Time, lastErr error, circuitState CircuitBreakerState) {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()

	state := c.circuitBreaker.State()
	isHealthy = state == StateClosed && c.lastError == nil
	return isHealthy, c.lastSuccessTime, c.lastError, state
}
