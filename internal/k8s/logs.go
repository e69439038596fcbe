package k8s

import (
	"context"
	"fmt"
	"io"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// TailLogs opens a follow stream of a container's log starting with the last tailLines
// lines (negative means the whole log). The per-call timeout bounds only the wait for the
// response headers; after that the stream lives until ctx is done or it is closed.
func (c *Client) TailLogs(ctx context.Context, namespace, pod, container string, tailLines int64) (io.ReadCloser, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return nil, err
	}
	opts := &corev1.PodLogOptions{
		Container: container,
		Follow:    true,
	}
	if tailLines >= 0 {
		opts.TailLines = &tailLines
	}

	var stream io.ReadCloser
	err := c.circuitBreaker.Execute(ctx, func() error {
		var err error
		stream, err = c.openStream(ctx, func(ctx context.Context) (io.ReadCloser, error) {
			return c.Clientset.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
		})
		return err
	})
	c.updateHealth(err)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", namespace, pod, ErrPodNotFound)
		}
		return nil, fmt.Errorf("stream logs %s/%s[%s]: %w", namespace, pod, container, err)
	}
	return stream, nil
}

// openStream runs open under a watchdog that cancels it if no stream arrives within
// c.Timeout. The returned stream releases its context on Close.
func (c *Client) openStream(ctx context.Context, open func(context.Context) (io.ReadCloser, error)) (io.ReadCloser, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	var watchdog *time.Timer
	if c.Timeout > 0 {
		watchdog = time.AfterFunc(c.Timeout, cancel)
	}

	stream, err := open(streamCtx)
	if watchdog != nil && !watchdog.Stop() {
		// The watchdog fired; whatever open returned is already cancelled.
		if stream != nil {
			_ = stream.Close()
		}
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("open stream: %w", context.DeadlineExceeded)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnClose{ReadCloser: stream, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (s *cancelOnClose) Close() error {
	err := s.ReadCloser.Close()
	s.cancel()
	return err
}
