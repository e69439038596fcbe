package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/kubilitics/kubeluma/internal/pkg/metrics"
)

// Discovery polls the pod list while a pattern is set and publishes the filtered snapshot.
type Discovery struct {
	e    *Engine
	wake *Signal
	log  *zap.Logger
}

func (d *Discovery) tick(ctx context.Context) {
	p, version := d.e.filter.Current()
	if p == nil {
		metrics.LoopTicksTotal.WithLabelValues("discovery", "skipped").Inc()
		return
	}

	pods, err := d.e.gw.ListPods(ctx, d.e.opts.Namespace)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.LoopTicksTotal.WithLabelValues("discovery", "error").Inc()
		d.log.Warn("list pods failed, keeping previous snapshot", zap.Error(err))
		return
	}

	snap := BuildSnapshot(pods, p)
	prev, focusCleared, ok := d.e.commitSnapshot(version, snap)
	if !ok {
		// The pattern changed while listing; the filter wake schedules a fresh tick.
		metrics.LoopTicksTotal.WithLabelValues("discovery", "skipped").Inc()
		return
	}
	metrics.LoopTicksTotal.WithLabelValues("discovery", "ok").Inc()

	if diff := DiffSnapshots(prev, snap); !diff.Empty() {
		d.log.Debug("snapshot changed",
			zap.Strings("added", diff.Added),
			zap.Strings("removed", diff.Removed),
			zap.Strings("changed", diff.Changed),
			zap.Int("pods", snap.Len()))
	}
	if focusCleared {
		d.log.Info("focused pod left the snapshot, focus cleared")
	}
	d.e.publishPods()
}
