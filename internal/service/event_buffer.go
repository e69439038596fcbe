package service

import (
	"sync"
	"time"

	"github.com/kubilitics/kubeluma/internal/models"
)

// EventBuffer is a bounded FIFO of cluster events; the oldest is evicted first.
// It holds events for every object so a focus change can be served from it.
type EventBuffer struct {
	mu       sync.RWMutex
	items    []models.ClusterEvent
	capacity int
}

func NewEventBuffer(capacity int) *EventBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &EventBuffer{items: make([]models.ClusterEvent, 0, capacity), capacity: capacity}
}

// Push appends ev and reports whether an older event was evicted.
func (b *EventBuffer) Push(ev models.ClusterEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) < b.capacity {
		b.items = append(b.items, ev)
		return false
	}
	copy(b.items, b.items[1:])
	b.items[len(b.items)-1] = ev
	return true
}

func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// All returns the buffered events, oldest first.
func (b *EventBuffer) All() []models.ClusterEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.ClusterEvent, len(b.items))
	copy(out, b.items)
	return out
}

// ForPod returns the records about target, oldest first, aged against now.
func (b *EventBuffer) ForPod(target FocusTarget, now time.Time) []models.EventRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.EventRecord, 0)
	for _, ev := range b.items {
		if aboutPod(ev, target) {
			out = append(out, toRecord(ev, now))
		}
	}
	return out
}

func aboutPod(ev models.ClusterEvent, target FocusTarget) bool {
	if target.Empty() || ev.InvolvedName != target.Name {
		return false
	}
	if ev.InvolvedKind != "" && ev.InvolvedKind != "Pod" {
		return false
	}
	return target.Namespace == "" || ev.Namespace == "" || ev.Namespace == target.Namespace
}

func toRecord(ev models.ClusterEvent, now time.Time) models.EventRecord {
	var age int64
	if !ev.Timestamp.IsZero() {
		age = int64(now.Sub(ev.Timestamp).Seconds())
		if age < 0 {
			age = 0
		}
	}
	return models.EventRecord{
		Pod:        ev.InvolvedName,
		Severity:   ev.Type,
		Reason:     ev.Reason,
		Message:    ev.Message,
		AgeSeconds: age,
		TargetType: ev.InvolvedKind,
		Timestamp:  ev.Timestamp,
	}
}
