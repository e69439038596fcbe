package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/kubilitics/kubeluma/internal/k8s"
	"github.com/kubilitics/kubeluma/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPod(ns, name string, containers ...string) corev1.Pod {
	pod := corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:              name,
			Namespace:         ns,
			UID:               types.UID("uid-" + name),
			CreationTimestamp: metav1.NewTime(testNow.Add(-time.Minute)),
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning, PodIP: "10.0.0.1", HostIP: "192.168.1.10"},
	}
	for _, c := range containers {
		pod.Spec.Containers = append(pod.Spec.Containers, corev1.Container{Name: c, Image: "repo/" + c + ":1"})
		pod.Status.ContainerStatuses = append(pod.Status.ContainerStatuses, corev1.ContainerStatus{
			Name:  c,
			Ready: true,
			State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}},
		})
	}
	return pod
}

func podMetrics(name string, cpu, mem string) *metricsv1beta1.PodMetrics {
	return &metricsv1beta1.PodMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Containers: []metricsv1beta1.ContainerMetrics{{
			Name: "app",
			Usage: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(cpu),
				corev1.ResourceMemory: resource.MustParse(mem),
			},
		}},
	}
}

type logCall struct {
	namespace string
	key       models.LogKey
	tail      int64
	ctx       context.Context
}

// fakeGateway serves canned cluster state.
type fakeGateway struct {
	mu         sync.Mutex
	pods       []corev1.Pod
	listErr    error
	metrics    map[string]*metricsv1beta1.PodMetrics
	metricsErr error
	events     []models.ClusterEvent
	getCalls   int

	logCalls []logCall
	openLogs func(key models.LogKey) (io.ReadCloser, error)
}

func (g *fakeGateway) setPods(pods ...corev1.Pod) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pods = pods
}

func (g *fakeGateway) ListPods(_ context.Context, namespace string) ([]corev1.Pod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	var out []corev1.Pod
	for _, p := range g.pods {
		if namespace == "" || p.Namespace == namespace {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *fakeGateway) GetPod(_ context.Context, namespace, name string) (*corev1.Pod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	for i := range g.pods {
		if g.pods[i].Namespace == namespace && g.pods[i].Name == name {
			p := g.pods[i].DeepCopy()
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s/%s: %w", namespace, name, k8s.ErrPodNotFound)
}

func (g *fakeGateway) GetPodMetrics(_ context.Context, _, name string) (*metricsv1beta1.PodMetrics, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.metricsErr != nil {
		return nil, g.metricsErr
	}
	pm, ok := g.metrics[name]
	if !ok {
		return nil, fmt.Errorf("no metrics for %s", name)
	}
	return pm, nil
}

func (g *fakeGateway) ListEvents(context.Context, string) ([]models.ClusterEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.ClusterEvent(nil), g.events...), nil
}

func (g *fakeGateway) TailLogs(ctx context.Context, namespace, pod, container string, tail int64) (io.ReadCloser, error) {
	key := models.LogKey{Pod: pod, Container: container}
	g.mu.Lock()
	g.logCalls = append(g.logCalls, logCall{namespace: namespace, key: key, tail: tail, ctx: ctx})
	open := g.openLogs
	g.mu.Unlock()
	if open == nil {
		return io.NopCloser(&blockingReader{ctx: ctx}), nil
	}
	return open(key)
}

func (g *fakeGateway) tailCalls() []logCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]logCall(nil), g.logCalls...)
}

// blockingReader never yields data and fails once ctx is done.
type blockingReader struct{ ctx context.Context }

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

// recorder is a Publisher that keeps everything it is handed.
type recorder struct {
	mu          sync.Mutex
	msgs        []models.ServerMessage
	lines       []models.LogLine
	invalidated []string

	// onInvalidate, when set, runs on every Invalidate before it is recorded.
	onInvalidate func(msgTypes []string)
}

func (r *recorder) Publish(msg models.ServerMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) PublishLog(line models.LogLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recorder) Invalidate(msgTypes ...string) {
	if r.onInvalidate != nil {
		r.onInvalidate(msgTypes)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, msgTypes...)
}

func (r *recorder) ofType(msgType string) []models.ServerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ServerMessage
	for _, m := range r.msgs {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) last(msgType string) (models.ServerMessage, bool) {
	msgs := r.ofType(msgType)
	if len(msgs) == 0 {
		return models.ServerMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

func (r *recorder) logLines() []models.LogLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.LogLine(nil), r.lines...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs, r.lines, r.invalidated = nil, nil, nil
}
