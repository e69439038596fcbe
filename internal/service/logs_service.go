package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/kubilitics/kubeluma/internal/models"
	"github.com/kubilitics/kubeluma/internal/pkg/logger"
	"github.com/kubilitics/kubeluma/internal/pkg/metrics"
)

var (
	// ErrStreamerClosed is returned by Subscribe after Close.
	ErrStreamerClosed = errors.New("log streamer is closed")
	// ErrInvalidLogKey is returned for a subscription missing its pod or container.
	ErrInvalidLogKey = errors.New("log subscription needs pod and container")
)

// LogErrorPrefix starts the line sent to subscribers when a stream fails.
const LogErrorPrefix = "[log-stream-error]"

const maxLogLineBytes = 1024 * 1024

// LogStreamer runs one follow stream per (pod, container) with at least one subscriber.
//
// Lines are published while holding the streamer lock, and so is the attach callback
// handed to Subscribe, so a joiner sees the catch-up ring and then every later line with
// no gap or repeat.
type LogStreamer struct {
	gw           Gateway
	pub          Publisher
	namespaceFor func(pod string) string
	tail         int64
	ringSize     int
	log          *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	tasks  map[models.LogKey]*logTask
	conns  map[string]map[models.LogKey]struct{}
	wg     sync.WaitGroup
}

type logTask struct {
	key         models.LogKey
	subscribers map[string]struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	ring        []string
	dead        bool
}

// NewLogStreamer returns an idle streamer. tail is the number of lines requested when a
// stream opens and ringSize bounds the catch-up handed to later joiners.
func NewLogStreamer(gw Gateway, pub Publisher, namespaceFor func(string) string, tail int64, ringSize int, log *zap.Logger) *LogStreamer {
	if ringSize < 0 {
		ringSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LogStreamer{
		gw:           gw,
		pub:          pub,
		namespaceFor: namespaceFor,
		tail:         tail,
		ringSize:     ringSize,
		log:          logger.OrNop(log),
		ctx:          ctx,
		cancel:       cancel,
		tasks:        make(map[models.LogKey]*logTask),
		conns:        make(map[string]map[models.LogKey]struct{}),
	}
}

// Start ties every stream to ctx: cancelling it stops them all.
func (s *LogStreamer) Start(ctx context.Context) {
	context.AfterFunc(ctx, s.cancel)
}

// Close stops every stream and waits for their goroutines.
func (s *LogStreamer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for key, t := range s.tasks {
		t.cancel()
		delete(s.tasks, key)
	}
	s.conns = make(map[string]map[models.LogKey]struct{})
	metrics.LogStreamsActive.Set(0)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Subscribe adds connID to the stream of key, starting it when needed (or restarting it
// after a failure). attach receives the catch-up lines and must register the viewer for
// later lines before returning.
func (s *LogStreamer) Subscribe(connID string, key models.LogKey, attach func(catchup []models.LogLine)) error {
	if key.Pod == "" || key.Container == "" {
		return ErrInvalidLogKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamerClosed
	}

	t := s.tasks[key]
	switch {
	case t == nil:
		t = s.spawnLocked(key, nil)
	case t.dead:
		t = s.spawnLocked(key, t.subscribers)
	}
	t.subscribers[connID] = struct{}{}
	if s.conns[connID] == nil {
		s.conns[connID] = make(map[models.LogKey]struct{})
	}
	s.conns[connID][key] = struct{}{}

	if attach != nil {
		catchup := make([]models.LogLine, len(t.ring))
		for i, line := range t.ring {
			catchup[i] = models.LogLine{Key: key, Line: line}
		}
		attach(catchup)
	}
	return nil
}

// Unsubscribe removes connID from the stream of key; the last subscriber stops it.
func (s *LogStreamer) Unsubscribe(connID string, key models.LogKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(connID, key)
}

// ReleaseAll drops every subscription held by connID.
func (s *LogStreamer) ReleaseAll(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.conns[connID] {
		s.releaseLocked(connID, key)
	}
	delete(s.conns, connID)
}

// ActiveStreams returns the number of running streams.
func (s *LogStreamer) ActiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

func (s *LogStreamer) releaseLocked(connID string, key models.LogKey) {
	if keys := s.conns[connID]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.conns, connID)
		}
	}
	t := s.tasks[key]
	if t == nil {
		return
	}
	delete(t.subscribers, connID)
	if len(t.subscribers) > 0 {
		return
	}
	t.cancel()
	delete(s.tasks, key)
	metrics.LogStreamsActive.Set(float64(s.activeLocked()))
	s.log.Debug("log stream stopped", zap.String("stream", key.String()))
}

func (s *LogStreamer) spawnLocked(key models.LogKey, subscribers map[string]struct{}) *logTask {
	if subscribers == nil {
		subscribers = make(map[string]struct{})
	}
	ctx, cancel := context.WithCancel(s.ctx)
	t := &logTask{key: key, subscribers: subscribers, ctx: ctx, cancel: cancel}
	s.tasks[key] = t
	metrics.LogStreamsActive.Set(float64(s.activeLocked()))

	s.wg.Add(1)
	go s.run(t)
	s.log.Debug("log stream started", zap.String("stream", key.String()))
	return t
}

func (s *LogStreamer) activeLocked() int {
	n := 0
	for _, t := range s.tasks {
		if !t.dead {
			n++
		}
	}
	return n
}

func (s *LogStreamer) run(t *logTask) {
	defer s.wg.Done()

	ns := s.namespaceFor(t.key.Pod)
	stream, err := s.gw.TailLogs(t.ctx, ns, t.key.Pod, t.key.Container, s.tail)
	if err != nil {
		s.fail(t, err)
		return
	}
	rc := &onceCloser{rc: stream}
	stop := context.AfterFunc(t.ctx, func() { _ = rc.Close() })
	defer stop()
	defer rc.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineBytes)
	for scanner.Scan() {
		if !s.emit(t, scanner.Text()) {
			return
		}
	}
	err = scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.fail(t, err)
}

// emit records and publishes one line. It reports false once the task is no longer current.
func (s *LogStreamer) emit(t *logTask, line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ctx.Err() != nil || t.dead || s.tasks[t.key] != t {
		return false
	}
	if s.ringSize > 0 {
		if len(t.ring) == s.ringSize {
			copy(t.ring, t.ring[1:])
			t.ring = t.ring[:len(t.ring)-1]
		}
		t.ring = append(t.ring, line)
	}
	s.pub.PublishLog(models.LogLine{Key: t.key, Line: line})
	return true
}

func (s *LogStreamer) fail(t *logTask, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ctx.Err() != nil || t.dead || s.tasks[t.key] != t {
		return
	}
	t.dead = true
	t.cancel()
	metrics.LogStreamsActive.Set(float64(s.activeLocked()))

	reason := err.Error()
	if errors.Is(err, io.EOF) {
		reason = "stream ended"
	}
	s.log.Warn("log stream failed", zap.String("stream", t.key.String()), zap.Error(err))
	s.pub.PublishLog(models.LogLine{Key: t.key, Line: fmt.Sprintf("%s %s", LogErrorPrefix, reason)})
}

// onceCloser closes the wrapped stream at most once.
type onceCloser struct {
	rc   io.ReadCloser
	once sync.Once
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() { c.err = c.rc.Close() })
	return c.err
}
