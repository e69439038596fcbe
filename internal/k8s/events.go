package k8s

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	eventsv1 "k8s.io/api/events/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubilitics/kubeluma/internal/models"
)

// ListEvents lists events from events.k8s.io/v1 and falls back to core/v1 events when the
// newer API fails. Both are normalized to models.ClusterEvent.
func (c *Client) ListEvents(ctx context.Context, namespace string) ([]models.ClusterEvent, error) {
	list, err := call(ctx, c, "list_events", func(ctx context.Context) (*eventsv1.EventList, error) {
		return c.Clientset.EventsV1().Events(namespace).List(ctx, metav1.ListOptions{})
	})
	if err == nil {
		out := make([]models.ClusterEvent, 0, len(list.Items))
		for i := range list.Items {
			out = append(out, fromEventsV1(&list.Items[i]))
		}
		return out, nil
	}
	if ctx.Err() != nil || errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("list events: %w", err)
	}

	c.log.Debug("events.k8s.io list failed, using core events", zap.Error(err))
	legacy, lerr := call(ctx, c, "list_core_events", func(ctx context.Context) (*corev1.EventList, error) {
		return c.Clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{})
	})
	if lerr != nil {
		return nil, fmt.Errorf("list events: %w", lerr)
	}
	out := make([]models.ClusterEvent, 0, len(legacy.Items))
	for i := range legacy.Items {
		out = append(out, fromCoreV1(&legacy.Items[i]))
	}
	return out, nil
}

func fromEventsV1(e *eventsv1.Event) models.ClusterEvent {
	return models.ClusterEvent{
		UID:          string(e.UID),
		Type:         e.Type,
		Reason:       e.Reason,
		Message:      e.Note,
		InvolvedKind: e.Regarding.Kind,
		InvolvedName: e.Regarding.Name,
		Namespace:    e.Namespace,
		Timestamp: firstSet(
			e.EventTime.Time,
			seriesTime(e.Series),
			e.DeprecatedLastTimestamp.Time,
			e.CreationTimestamp.Time,
		),
	}
}

func fromCoreV1(e *corev1.Event) models.ClusterEvent {
	return models.ClusterEvent{
		UID:          string(e.UID),
		Type:         e.Type,
		Reason:       e.Reason,
		Message:      e.Message,
		InvolvedKind: e.InvolvedObject.Kind,
		InvolvedName: e.InvolvedObject.Name,
		Namespace:    e.Namespace,
		Timestamp: firstSet(
			e.LastTimestamp.Time,
			e.EventTime.Time,
			e.FirstTimestamp.Time,
			e.CreationTimestamp.Time,
		),
	}
}

func seriesTime(s *eventsv1.EventSeries) time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.LastObservedTime.Time
}

func firstSet(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
