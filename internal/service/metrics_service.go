package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kubilitics/kubeluma/internal/k8s"
	"github.com/kubilitics/kubeluma/internal/models"
	"github.com/kubilitics/kubeluma/internal/pkg/metrics"
)

// MetricsLoop samples CPU and memory of the focused pod.
type MetricsLoop struct {
	e    *Engine
	wake *Signal
	log  *zap.Logger

	disabled bool
}

func (l *MetricsLoop) tick(ctx context.Context) {
	target, version := l.e.focus.Current()
	if target.Empty() {
		return
	}

	pm, err := l.e.gw.GetPodMetrics(ctx, target.Namespace, target.Name)
	if errors.Is(err, k8s.ErrMetricsUnavailable) {
		metrics.LoopTicksTotal.WithLabelValues("metrics", "disabled").Inc()
		if !l.disabled {
			l.disabled = true
			l.log.Info("metrics API unavailable, metrics disabled", zap.Error(err))
		}
		// Sent every tick; the hub forwards it once per change.
		l.e.publishFocused(version, models.ServerMessage{Type: models.MessageMetrics, Data: models.MetricsView{Disabled: true}})
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.LoopTicksTotal.WithLabelValues("metrics", "error").Inc()
		l.log.Warn("pod metrics fetch failed", zap.String("pod", target.Name), zap.Error(err))
		return
	}
	if l.disabled {
		l.log.Info("metrics API available again")
		l.disabled = false
	}

	detail := l.detailFor(ctx, target)
	view := BuildMetricsView(pm, detail, l.e.opts.Thresholds)
	metrics.LoopTicksTotal.WithLabelValues("metrics", "ok").Inc()
	l.e.publishFocused(version, models.ServerMessage{Type: models.MessageMetrics, Data: view})
}

// detailFor returns the latest detail of target, fetching it when the detail loop has not
// produced one yet. Nil means requests and limits are unknown.
func (l *MetricsLoop) detailFor(ctx context.Context, target FocusTarget) *models.PodDetail {
	if d, _ := l.e.detail.Load(); d != nil && d.Name == target.Name && d.Namespace == target.Namespace {
		return d
	}
	pod, err := l.e.gw.GetPod(ctx, target.Namespace, target.Name)
	if err != nil {
		l.log.Debug("detail unavailable for metrics", zap.String("pod", target.Name), zap.Error(err))
		return nil
	}
	d := PodDetailFrom(pod, l.e.opts.Now())
	return &d
}
