package service

import (
	"context"
	"errors"
	"reflect"

	"go.uber.org/zap"

	"github.com/kubilitics/kubeluma/internal/k8s"
	"github.com/kubilitics/kubeluma/internal/models"
	"github.com/kubilitics/kubeluma/internal/pkg/metrics"
)

// DetailLoop publishes the focused pod's detail whenever it changes.
type DetailLoop struct {
	e    *Engine
	wake *Signal
	log  *zap.Logger

	last        *models.PodDetail
	lastVersion uint64 // focus version last was published for
}

func (l *DetailLoop) tick(ctx context.Context) {
	target, version := l.e.focus.Current()
	if target.Empty() {
		l.last = nil
		return
	}

	pod, err := l.e.gw.GetPod(ctx, target.Namespace, target.Name)
	if errors.Is(err, k8s.ErrPodNotFound) {
		metrics.LoopTicksTotal.WithLabelValues("detail", "not_found").Inc()
		l.e.dropFocus(target.Name, "pod not found")
		l.last = nil
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.LoopTicksTotal.WithLabelValues("detail", "error").Inc()
		l.log.Warn("get pod failed, keeping previous detail", zap.String("pod", target.Name), zap.Error(err))
		return
	}

	detail := PodDetailFrom(pod, l.e.opts.Now())
	if _, v := l.e.focus.Current(); v != version {
		// Focus moved while fetching.
		return
	}
	l.e.detail.Store(&detail)
	metrics.LoopTicksTotal.WithLabelValues("detail", "ok").Inc()

	if l.last != nil && l.lastVersion == version && sameDetail(*l.last, detail) {
		return
	}
	if !l.e.publishFocused(version, models.ServerMessage{Type: models.MessagePod, Data: detail}) {
		return
	}
	l.last = &detail
	l.lastVersion = version
}

// sameDetail compares two details ignoring their age.
func sameDetail(a, b models.PodDetail) bool {
	a.AgeSeconds, b.AgeSeconds = 0, 0
	return reflect.DeepEqual(a, b)
}
