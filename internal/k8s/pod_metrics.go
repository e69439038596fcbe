package k8s

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
)

const (
	metricsGroupVersion = "metrics.k8s.io/v1beta1"
	// A positive discovery answer is trusted this long before asking again.
	metricsCheckTTL = 5 * time.Minute
)

type metricsCheck struct {
	checked   time.Time
	available bool
}

// metricsAvailable asks discovery whether the metrics API serves pods. Errors other than
// NotFound are returned as-is so callers treat them as transient.
func (c *Client) metricsAvailable(ctx context.Context) (bool, error) {
	c.metricsMu.Lock()
	last := c.metricsAPI
	c.metricsMu.Unlock()
	if last.available && time.Since(last.checked) < metricsCheckTTL {
		return true, nil
	}

	available, err := call(ctx, c, "discover_metrics", func(ctx context.Context) (bool, error) {
		list, err := awaitCtx(ctx, func() (*metav1.APIResourceList, error) {
			return c.discovery().ServerResourcesForGroupVersion(metricsGroupVersion)
		})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		for _, r := range list.APIResources {
			if r.Name == "pods" {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return false, err
	}
	c.setMetricsAvailable(available)
	return available, nil
}

// awaitCtx runs fn, which cannot take a context, and gives up when ctx is done. An
// abandoned fn finishes on its own client timeout.
func awaitCtx[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Client) setMetricsAvailable(available bool) {
	c.metricsMu.Lock()
	c.metricsAPI = metricsCheck{checked: time.Now(), available: available}
	c.metricsMu.Unlock()
}

// GetPodMetrics returns the latest usage sample of a pod. ErrMetricsUnavailable means the
// cluster has no metrics API at all; a pod without a sample yet is a plain error.
func (c *Client) GetPodMetrics(ctx context.Context, namespace, name string) (*metricsv1beta1.PodMetrics, error) {
	if c.Metrics == nil {
		return nil, ErrMetricsUnavailable
	}
	ok, err := c.metricsAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("check metrics API: %w", err)
	}
	if !ok {
		return nil, ErrMetricsUnavailable
	}

	pm, err := call(ctx, c, "get_pod_metrics", func(ctx context.Context) (*metricsv1beta1.PodMetrics, error) {
		return c.Metrics.MetricsV1beta1().PodMetricses(namespace).Get(ctx, name, metav1.GetOptions{})
	})
	if err != nil {
		if apierrors.IsServiceUnavailable(err) {
			c.setMetricsAvailable(false)
			return nil, fmt.Errorf("%w: %v", ErrMetricsUnavailable, err)
		}
		return nil, fmt.Errorf("pod metrics %s/%s: %w", namespace, name, err)
	}
	return pm, nil
}
