package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubeluma/internal/models"
)

func podEvent(uid, pod, reason string, at time.Time) models.ClusterEvent {
	return models.ClusterEvent{
		UID:          uid,
		Type:         "Warning",
		Reason:       reason,
		Message:      reason + " on " + pod,
		InvolvedKind: "Pod",
		InvolvedName: pod,
		Namespace:    "default",
		Timestamp:    at,
	}
}

func TestEventBuffer_EvictsOldest(t *testing.T) {
	b := NewEventBuffer(2)
	assert.False(t, b.Push(podEvent("1", "a", "R1", testNow)))
	assert.False(t, b.Push(podEvent("2", "a", "R2", testNow)))
	assert.True(t, b.Push(podEvent("3", "a", "R3", testNow)))

	all := b.All()
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].UID)
	assert.Equal(t, "3", all[1].UID)
	assert.Equal(t, 2, b.Len())
}

func TestEventBuffer_ForPod(t *testing.T) {
	b := NewEventBuffer(10)
	b.Push(podEvent("1", "api-1", "BackOff", testNow.Add(-30*time.Second)))
	b.Push(podEvent("2", "api-2", "Pulled", testNow))
	other := podEvent("3", "api-1", "ScalingReplicaSet", testNow)
	other.InvolvedKind = "Deployment"
	b.Push(other)
	elsewhere := podEvent("4", "api-1", "Killing", testNow)
	elsewhere.Namespace = "prod"
	b.Push(elsewhere)
	future := podEvent("5", "api-1", "Started", testNow.Add(time.Minute))
	b.Push(future)

	recs := b.ForPod(FocusTarget{Name: "api-1", Namespace: "default"}, testNow)
	require.Len(t, recs, 2)
	assert.Equal(t, "BackOff", recs[0].Reason)
	assert.Equal(t, int64(30), recs[0].AgeSeconds)
	assert.Equal(t, "Warning", recs[0].Severity)
	assert.Equal(t, "Pod", recs[0].TargetType)
	assert.Equal(t, int64(0), recs[1].AgeSeconds, "clock skew never yields a negative age")

	assert.Empty(t, b.ForPod(FocusTarget{}, testNow))
	assert.NotNil(t, b.ForPod(FocusTarget{Name: "nobody"}, testNow))
}
