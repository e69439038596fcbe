package service

import (
	"context"
	"io"

	corev1 "k8s.io/api/core/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/kubilitics/kubeluma/internal/k8s"
	"github.com/kubilitics/kubeluma/internal/models"
)

var _ Gateway = (*k8s.Client)(nil)

// Gateway is the cluster access the loops need. *k8s.Client implements it.
type Gateway interface {
	ListPods(ctx context.Context, namespace string) ([]corev1.Pod, error)
	GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error)
	GetPodMetrics(ctx context.Context, namespace, name string) (*metricsv1beta1.PodMetrics, error)
	ListEvents(ctx context.Context, namespace string) ([]models.ClusterEvent, error)
	TailLogs(ctx context.Context, namespace, pod, container string, tailLines int64) (io.ReadCloser, error)
}

// Publisher receives everything the loops produce. The websocket hub implements it.
type Publisher interface {
	Publish(msg models.ServerMessage)
	PublishLog(line models.LogLine)
	// Invalidate forgets the cached latest value of the given message types.
	Invalidate(msgTypes ...string)
}
