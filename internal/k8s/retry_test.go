package k8s

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoff(0))
	assert.Equal(t, 300*time.Millisecond, backoff(1))
	assert.Equal(t, 900*time.Millisecond, backoff(2))
	assert.Equal(t, maxBackoff, backoff(3))
	assert.Equal(t, maxBackoff, backoff(10))
}

func TestDoWithRetryValue_RetriesServerErrors(t *testing.T) {
	attempts := 0
	val, err := doWithRetryValue(context.Background(), 3, func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, apierrors.NewInternalError(errors.New("etcd leader changed"))
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 2, attempts)
}

func TestDoWithRetryValue_StopsOnClientErrors(t *testing.T) {
	attempts := 0
	_, err := doWithRetryValue(context.Background(), 3, func() (int, error) {
		attempts++
		return 0, apierrors.NewNotFound(schema.GroupResource{Resource: "pods"}, "x")
	})
	assert.True(t, apierrors.IsNotFound(err))
	assert.Equal(t, 1, attempts)
}

func TestDoWithRetryValue_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := doWithRetryValue(ctx, 3, func() (int, error) {
		return 0, apierrors.NewTooManyRequests("slow down", 1)
	})
	assert.ErrorIs(t, err, context.Canceled)
}
