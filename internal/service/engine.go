package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubeluma/internal/models"
	"github.com/kubilitics/kubeluma/internal/pkg/logger"
)

// Options configures an Engine.
type Options struct {
	Namespace      string // empty = all namespaces
	InitialPattern string

	PodRefresh      time.Duration
	DetailRefresh   time.Duration
	MetricsInterval time.Duration
	EventsInterval  time.Duration

	Thresholds models.Thresholds

	LogTailLines        int
	EventBufferCapacity int
	SeenEventsMax       int
	SeenEventsTTL       time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

func (o *Options) setDefaults() {
	if o.PodRefresh <= 0 {
		o.PodRefresh = 5 * time.Second
	}
	if o.DetailRefresh <= 0 {
		o.DetailRefresh = 5 * time.Second
	}
	if o.MetricsInterval <= 0 {
		o.MetricsInterval = 5 * time.Second
	}
	if o.EventsInterval <= 0 {
		o.EventsInterval = 6 * time.Second
	}
	if o.EventBufferCapacity <= 0 {
		o.EventBufferCapacity = 300
	}
	if o.SeenEventsMax <= 0 {
		o.SeenEventsMax = 5000
	}
	if o.SeenEventsTTL <= 0 {
		o.SeenEventsTTL = time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Logger = logger.OrNop(o.Logger)
}

// Engine owns the shared view state (filter, snapshot, focus, latest detail) and the
// refresh loops that keep it in sync with the cluster.
type Engine struct {
	opts Options
	gw   Gateway
	pub  Publisher
	log  *zap.Logger

	// mu orders pattern changes, snapshot commits, focus changes and focus publishes.
	// Held while calling pub.
	mu sync.Mutex
	// pubMu keeps pods messages in state order.
	pubMu sync.Mutex

	filter   *FilterState
	snapshot Cell[PodSnapshot]
	focus    *FocusTracker
	detail   Cell[*models.PodDetail]

	discovery *Discovery
	details   *DetailLoop
	metrics   *MetricsLoop
	events    *EventLoop
	logs      *LogStreamer
}

// NewEngine wires the loops. Nothing runs until Run is called.
func NewEngine(gw Gateway, pub Publisher, opts Options) *Engine {
	opts.setDefaults()
	e := &Engine{
		opts: opts,
		gw:   gw,
		pub:  pub,
		log:  opts.Logger,
	}

	discoveryWake, detailWake, metricsWake, eventsWake := NewSignal(), NewSignal(), NewSignal(), NewSignal()
	e.filter = NewFilterState(discoveryWake)
	// Metrics keep their own pace; a new focus gets numbers on the next metrics tick.
	e.focus = NewFocusTracker(e.currentSnapshot, detailWake, eventsWake)

	e.discovery = &Discovery{e: e, wake: discoveryWake, log: e.log.Named("discovery")}
	e.details = &DetailLoop{e: e, wake: detailWake, log: e.log.Named("detail")}
	e.metrics = &MetricsLoop{e: e, wake: metricsWake, log: e.log.Named("metrics")}
	e.events = newEventLoop(e, eventsWake)
	e.logs = NewLogStreamer(gw, pub, e.namespaceFor, int64(opts.LogTailLines), opts.LogTailLines, e.log.Named("logs"))
	return e
}

// Run starts every loop and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.opts.InitialPattern != "" {
		if _, err := e.SetPattern(e.opts.InitialPattern); err != nil {
			return fmt.Errorf("initial pattern: %w", err)
		}
	} else {
		e.publishAwaiting()
	}

	e.logs.Start(ctx)
	defer e.logs.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runLoop(ctx, e.opts.PodRefresh, e.discovery.wake, e.discovery.tick) })
	g.Go(func() error { return runLoop(ctx, e.opts.DetailRefresh, e.details.wake, e.details.tick) })
	g.Go(func() error { return runLoop(ctx, e.opts.MetricsInterval, e.metrics.wake, e.metrics.tick) })
	g.Go(func() error { return runLoop(ctx, e.opts.EventsInterval, e.events.wake, e.events.tick) })

	e.log.Info("engine started",
		zap.String("namespace", e.opts.Namespace),
		zap.Duration("pod_refresh", e.opts.PodRefresh),
		zap.Duration("metrics_interval", e.opts.MetricsInterval),
		zap.Duration("events_interval", e.opts.EventsInterval))
	return g.Wait()
}

// runLoop ticks immediately, then on every interval or wake, until ctx is done.
func runLoop(ctx context.Context, interval time.Duration, wake *Signal, tick func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake.C():
		}
	}
}

// SetPattern installs a new filter. The snapshot and focus are dropped and discovery
// re-polls at once.
func (e *Engine) SetPattern(text string) (string, error) {
	e.mu.Lock()
	p, err := e.filter.Set(text)
	if err != nil {
		e.mu.Unlock()
		return "", err
	}
	e.pub.Invalidate(models.MessagePods, models.MessagePod, models.MessageMetrics, models.MessageEvents)
	e.snapshot.Store(PodSnapshot{})
	e.focus.Clear()
	e.detail.Store(nil)
	e.mu.Unlock()

	e.log.Info("pattern set", zap.String("pattern", p.Text))
	return p.Text, nil
}

// ResetPattern clears the filter and tells every viewer the system awaits a pattern.
func (e *Engine) ResetPattern() {
	e.mu.Lock()
	e.filter.Reset()
	e.pub.Invalidate(models.MessagePods, models.MessagePod, models.MessageMetrics, models.MessageEvents)
	e.snapshot.Store(PodSnapshot{})
	e.focus.Clear()
	e.detail.Store(nil)
	e.mu.Unlock()

	e.publishAwaiting()
	e.log.Info("pattern reset")
}

// CurrentPattern returns the pattern text, if one is set.
func (e *Engine) CurrentPattern() (string, bool) {
	p, _ := e.filter.Current()
	if p == nil {
		return "", false
	}
	return p.Text, true
}

// RequestFocus relays a viewer's focus request. Unknown pods are rejected with ErrUnknownPod.
//
// Focus changes and the invalidation of cached focus payloads happen under e.mu, and
// loops publish focus payloads through publishFocused, so a payload for the new focus is
// never dropped from the hub cache.
func (e *Engine) RequestFocus(name string) error {
	e.mu.Lock()
	if !e.currentSnapshot().Contains(name) {
		e.mu.Unlock()
		e.log.Debug("focus rejected", zap.String("pod", name), zap.Error(ErrUnknownPod))
		return ErrUnknownPod
	}
	e.pub.Invalidate(models.MessagePod, models.MessageMetrics, models.MessageEvents)
	target, err := e.focus.Request(name)
	e.mu.Unlock()
	if err != nil {
		e.log.Debug("focus rejected", zap.String("pod", name), zap.Error(err))
		return err
	}
	e.log.Info("focus changed", zap.String("pod", target.Name), zap.String("namespace", target.Namespace))
	e.publishPods()
	return nil
}

// Focus returns the focused pod, if any.
func (e *Engine) Focus() FocusTarget {
	t, _ := e.focus.Current()
	return t
}

// SubscribeLogs attaches connID to the log stream of key.
func (e *Engine) SubscribeLogs(connID string, key models.LogKey, attach func(catchup []models.LogLine)) error {
	return e.logs.Subscribe(connID, key, attach)
}

func (e *Engine) UnsubscribeLogs(connID string, key models.LogKey) {
	e.logs.Unsubscribe(connID, key)
}

// ReleaseLogs drops every log subscription of connID.
func (e *Engine) ReleaseLogs(connID string) {
	e.logs.ReleaseAll(connID)
}

func (e *Engine) currentSnapshot() PodSnapshot {
	s, _ := e.snapshot.Load()
	return s
}

// commitSnapshot stores snap unless the filter changed since it was fetched, then clears a
// focus that no longer exists.
func (e *Engine) commitSnapshot(filterVersion uint64, snap PodSnapshot) (prev PodSnapshot, focusCleared, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filter.Version() != filterVersion {
		return PodSnapshot{}, false, false
	}
	prev = e.snapshot.Swap(snap)
	if e.focus.Reconcile(snap) {
		e.pub.Invalidate(models.MessagePod, models.MessageMetrics, models.MessageEvents)
		e.detail.Store(nil)
		focusCleared = true
	}
	return prev, focusCleared, true
}

// dropFocus clears the focus if it still names name and tells viewers.
func (e *Engine) dropFocus(name, reason string) {
	e.mu.Lock()
	cleared := e.focus.ClearIf(name)
	if cleared {
		e.pub.Invalidate(models.MessagePod, models.MessageMetrics, models.MessageEvents)
		e.detail.Store(nil)
	}
	e.mu.Unlock()
	if !cleared {
		return
	}
	e.log.Info("focus cleared", zap.String("pod", name), zap.String("reason", reason))
	e.publishPods()
}

// publishFocused publishes msg only while the focus is still at version. It holds e.mu
// so a focus change and its cache invalidation cannot interleave with the publish.
func (e *Engine) publishFocused(version uint64, msg models.ServerMessage) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, v := e.focus.Current(); v != version {
		return false
	}
	e.pub.Publish(msg)
	return true
}

func (e *Engine) publishPods() {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	p, _ := e.filter.Current()
	if p == nil {
		return
	}
	snap := e.currentSnapshot()
	focus, _ := e.focus.Current()

	text := p.Text
	payload := models.PodsPayload{Pods: snap.Pods(), Pattern: &text}
	if !focus.Empty() {
		name := focus.Name
		payload.Focus = &name
	}
	e.pub.Publish(models.ServerMessage{Type: models.MessagePods, Data: payload})
}

func (e *Engine) publishAwaiting() {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if p, _ := e.filter.Current(); p != nil {
		return
	}
	e.pub.Publish(models.ServerMessage{Type: models.MessageAwaitingPattern})
}

// namespaceFor resolves the namespace of a pod by name for log streams.
func (e *Engine) namespaceFor(pod string) string {
	if ps, ok := e.currentSnapshot().Get(pod); ok && ps.Namespace != "" {
		return ps.Namespace
	}
	if e.opts.Namespace != "" {
		return e.opts.Namespace
	}
	return "default"
}
