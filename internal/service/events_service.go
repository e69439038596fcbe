package service

import (
	"context"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/kubilitics/kubeluma/internal/models"
	"github.com/kubilitics/kubeluma/internal/pkg/metrics"
)

// EventLoop keeps a rolling buffer of cluster events and publishes the focused pod's share.
type EventLoop struct {
	e      *Engine
	wake   *Signal
	log    *zap.Logger
	buffer *EventBuffer
	seen   *expirable.LRU[string, struct{}]
}

func newEventLoop(e *Engine, wake *Signal) *EventLoop {
	return &EventLoop{
		e:      e,
		wake:   wake,
		log:    e.log.Named("events"),
		buffer: NewEventBuffer(e.opts.EventBufferCapacity),
		seen:   expirable.NewLRU[string, struct{}](e.opts.SeenEventsMax, nil, e.opts.SeenEventsTTL),
	}
}

func seenKey(ev models.ClusterEvent) string {
	return fmt.Sprintf("%s@%d", ev.UID, ev.Timestamp.UnixNano())
}

// collect lists events and buffers the ones not seen before, returning those.
func (l *EventLoop) collect(ctx context.Context) []models.ClusterEvent {
	events, err := l.e.gw.ListEvents(ctx, l.e.opts.Namespace)
	if err != nil {
		if ctx.Err() == nil {
			metrics.LoopTicksTotal.WithLabelValues("events", "error").Inc()
			l.log.Warn("list events failed", zap.Error(err))
		}
		return nil
	}
	metrics.LoopTicksTotal.WithLabelValues("events", "ok").Inc()

	var fresh []models.ClusterEvent
	for _, ev := range events {
		key := seenKey(ev)
		if l.seen.Contains(key) {
			continue
		}
		l.seen.Add(key, struct{}{})
		l.buffer.Push(ev)
		fresh = append(fresh, ev)
	}
	metrics.EventBufferSize.Set(float64(l.buffer.Len()))
	return fresh
}

func (l *EventLoop) tick(ctx context.Context) {
	fresh := l.collect(ctx)

	target, version := l.e.focus.Current()
	if target.Empty() {
		return
	}
	now := l.e.opts.Now()
	if !l.e.publishFocused(version, models.ServerMessage{Type: models.MessageEvents, Data: l.buffer.ForPod(target, now)}) {
		return
	}
	for _, ev := range fresh {
		if aboutPod(ev, target) {
			l.e.publishFocused(version, models.ServerMessage{Type: models.MessageEvent, Data: toRecord(ev, now)})
		}
	}
}
