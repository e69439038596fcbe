package k8s

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	eventsv1 "k8s.io/api/events/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"
)

func testPod(ns, name string) *corev1.Pod {
	return &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns}}
}

func TestListPods_NamespaceScoping(t *testing.T) {
	cs := fake.NewSimpleClientset(testPod("default", "api-1"), testPod("prod", "api-2"))
	c := NewClientForTest(cs, nil)

	all, err := c.ListPods(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	prod, err := c.ListPods(context.Background(), "prod")
	require.NoError(t, err)
	require.Len(t, prod, 1)
	assert.Equal(t, "api-2", prod[0].Name)
}

func TestGetPod_NotFound(t *testing.T) {
	c := NewClientForTest(fake.NewSimpleClientset(testPod("default", "api-1")), nil)

	pod, err := c.GetPod(context.Background(), "default", "api-1")
	require.NoError(t, err)
	assert.Equal(t, "api-1", pod.Name)

	_, err = c.GetPod(context.Background(), "default", "gone")
	assert.ErrorIs(t, err, ErrPodNotFound)

	healthy, _, _, state := c.HealthStatus()
	assert.True(t, healthy, "NotFound must not mark the connection unhealthy")
	assert.Equal(t, StateClosed, state)
}

func TestListPods_TimeoutIsTransient(t *testing.T) {
	cs := fake.NewSimpleClientset()
	cs.PrependReactor("list", "pods", func(k8stesting.Action) (bool, runtime.Object, error) {
		time.Sleep(50 * time.Millisecond)
		return true, nil, context.DeadlineExceeded
	})
	c := NewClientForTest(cs, nil)
	c.SetTimeout(10 * time.Millisecond)

	_, err := c.ListPods(context.Background(), "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPodNotFound)

	healthy, _, lastErr, _ := c.HealthStatus()
	assert.False(t, healthy)
	assert.Error(t, lastErr)
}

func metricsResources() []*metav1.APIResourceList {
	return []*metav1.APIResourceList{{
		GroupVersion: "metrics.k8s.io/v1beta1",
		APIResources: []metav1.APIResource{{Name: "pods", Namespaced: true, Kind: "PodMetrics"}},
	}}
}

func TestGetPodMetrics_Unavailable(t *testing.T) {
	cs := fake.NewSimpleClientset()
	c := NewClientForTest(cs, metricsfake.NewSimpleClientset())

	_, err := c.GetPodMetrics(context.Background(), "default", "api-1")
	assert.ErrorIs(t, err, ErrMetricsUnavailable)

	c = NewClientForTest(cs, nil)
	_, err = c.GetPodMetrics(context.Background(), "default", "api-1")
	assert.ErrorIs(t, err, ErrMetricsUnavailable)
}

func TestGetPodMetrics_Sample(t *testing.T) {
	cs := fake.NewSimpleClientset()
	cs.Resources = metricsResources()

	sample := &metricsv1beta1.PodMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: "api-1", Namespace: "default"},
		Containers: []metricsv1beta1.ContainerMetrics{{
			Name: "app",
			Usage: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("250m"),
				corev1.ResourceMemory: resource.MustParse("128Mi"),
			},
		}},
	}
	mc := metricsfake.NewSimpleClientset()
	mc.PrependReactor("get", "pods", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, sample, nil
	})

	c := NewClientForTest(cs, mc)
	pm, err := c.GetPodMetrics(context.Background(), "default", "api-1")
	require.NoError(t, err)
	require.Len(t, pm.Containers, 1)
	assert.Equal(t, int64(250), pm.Containers[0].Usage.Cpu().MilliValue())
}

func TestGetPodMetrics_ServiceUnavailableDisables(t *testing.T) {
	cs := fake.NewSimpleClientset()
	cs.Resources = metricsResources()
	mc := metricsfake.NewSimpleClientset()
	mc.PrependReactor("get", "pods", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewServiceUnavailable("metrics-server down")
	})

	c := NewClientForTest(cs, mc)
	_, err := c.GetPodMetrics(context.Background(), "default", "api-1")
	assert.ErrorIs(t, err, ErrMetricsUnavailable)
}

func TestListEvents_EventsV1(t *testing.T) {
	ts := metav1.NewMicroTime(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	cs := fake.NewSimpleClientset(&eventsv1.Event{
		ObjectMeta: metav1.ObjectMeta{Name: "e1", Namespace: "default", UID: "u1"},
		EventTime:  ts,
		Type:       corev1.EventTypeWarning,
		Reason:     "BackOff",
		Note:       "Back-off restarting failed container",
		Regarding:  corev1.ObjectReference{Kind: "Pod", Name: "api-1"},
	})
	c := NewClientForTest(cs, nil)

	events, err := c.ListEvents(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, "u1", e.UID)
	assert.Equal(t, "Warning", e.Type)
	assert.Equal(t, "Back-off restarting failed container", e.Message)
	assert.Equal(t, "Pod", e.InvolvedKind)
	assert.Equal(t, "api-1", e.InvolvedName)
	assert.True(t, ts.Time.Equal(e.Timestamp))
}

func TestListEvents_FallsBackToCoreEvents(t *testing.T) {
	last := metav1.NewTime(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	cs := fake.NewSimpleClientset(&corev1.Event{
		ObjectMeta:     metav1.ObjectMeta{Name: "e1", Namespace: "default", UID: "u2"},
		LastTimestamp:  last,
		Type:           corev1.EventTypeNormal,
		Reason:         "Pulled",
		Message:        "Container image pulled",
		InvolvedObject: corev1.ObjectReference{Kind: "Pod", Name: "api-1"},
	})
	cs.PrependReactor("list", "events", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if action.GetResource().Group == "events.k8s.io" {
			return true, nil, apierrors.NewNotFound(schema.GroupResource{Group: "events.k8s.io", Resource: "events"}, "")
		}
		return false, nil, nil
	})
	c := NewClientForTest(cs, nil)

	events, err := c.ListEvents(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Pulled", events[0].Reason)
	assert.Equal(t, "Container image pulled", events[0].Message)
	assert.True(t, last.Time.Equal(events[0].Timestamp))
}

func TestListEvents_BothFail(t *testing.T) {
	cs := fake.NewSimpleClientset()
	cs.PrependReactor("list", "events", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Resource: "events"}, "", errors.New("rbac"))
	})
	c := NewClientForTest(cs, nil)

	_, err := c.ListEvents(context.Background(), "")
	assert.True(t, apierrors.IsForbidden(err))
}

func TestTailLogs(t *testing.T) {
	c := NewClientForTest(fake.NewSimpleClientset(testPod("default", "api-1")), nil)

	rc, err := c.TailLogs(context.Background(), "default", "api-1", "app", 200)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "fake logs", string(data))
}
