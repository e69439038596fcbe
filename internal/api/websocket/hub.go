package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/kubilitics/kubeluma/internal/models"
	"github.com/kubilitics/kubeluma/internal/pkg/logger"
	"github.com/kubilitics/kubeluma/internal/pkg/metrics"
)

// snapshot message types are cached for late subscribers and de-duplicated.
var snapshotTypes = map[string]bool{
	models.MessagePods:    true,
	models.MessagePod:     true,
	models.MessageMetrics: true,
	models.MessageEvents:  true,
}

// Hub tracks viewer connections and routes published updates to the interested ones.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Unregister requests from clients
	unregister chan *Client

	// mu guards clients, each client's subscription and latest.
	mu sync.Mutex

	// latest payload per cache slot; awaitingPattern shares the pods slot.
	latest map[string][]byte

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

// NewHub creates a hub. Run must be running to process disconnects.
func NewHub(ctx context.Context, log *zap.Logger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[*Client]bool),
		unregister: make(chan *Client),
		latest:     make(map[string][]byte),
		ctx:        hubCtx,
		cancel:     cancel,
		log:        logger.OrNop(log),
	}
}

// Run processes unregistrations until the hub is stopped.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
		}
	}
}

// Register adds client before it can send any request, and hands it the awaiting
// notice when no pattern is set. It reports false once the hub is stopped.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return false
	}
	h.clients[client] = true
	metrics.WebSocketConnectionsActive.Set(float64(len(h.clients)))
	if data, ok := h.latest[models.MessagePods]; ok && isAwaiting(data) {
		h.sendLocked(client, data)
	}
	return true
}

// Stop disconnects every client.
func (h *Hub) Stop() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.removeLocked(client)
	}
}

// Publish routes msg to the clients interested in its type.
func (h *Hub) Publish(msg models.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	slot := cacheSlot(msg.Type)
	if snapshotTypes[msg.Type] {
		if prev, ok := h.latest[slot]; ok && bytes.Equal(prev, data) {
			metrics.HubMessagesTotal.WithLabelValues(msg.Type, "deduplicated").Inc()
			return
		}
	}
	if slot != "" {
		h.latest[slot] = data
	}
	metrics.HubMessagesTotal.WithLabelValues(msg.Type, "sent").Inc()

	for client := range h.clients {
		if client.wants(msg.Type) {
			h.sendLocked(client, data)
		}
	}
}

// PublishLog sends a log line to the clients subscribed to its stream.
func (h *Hub) PublishLog(line models.LogLine) {
	data, err := json.Marshal(line.Message())
	if err != nil {
		h.log.Error("marshal log line", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if _, ok := client.logs[line.Key]; ok {
			h.sendLocked(client, data)
		}
	}
}

// Invalidate forgets the cached payloads of msgTypes so the next publish is always sent.
func (h *Hub) Invalidate(msgTypes ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range msgTypes {
		delete(h.latest, cacheSlot(t))
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// subscribePod marks c as a pod list and focus viewer and replays the cached state.
func (h *Hub) subscribePod(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	c.wantsPods = true
	c.wantsFocus = true
	for _, slot := range []string{models.MessagePods, models.MessagePod, models.MessageMetrics, models.MessageEvents} {
		if data, ok := h.latest[slot]; ok {
			h.sendLocked(c, data)
		}
	}
}

// attachLogs sends catchup to c and subscribes it to later lines of key.
// It runs under the log streamer's lock.
func (h *Hub) attachLogs(c *Client, key models.LogKey, catchup []models.LogLine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	for _, line := range catchup {
		data, err := json.Marshal(line.Message())
		if err != nil {
			continue
		}
		h.sendLocked(c, data)
	}
	if h.clients[c] {
		c.logs[key] = struct{}{}
	}
}

func (h *Hub) detachLogs(c *Client, key models.LogKey) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.logs[key]; !ok {
		return false
	}
	delete(c.logs, key)
	return true
}

// sendLocked queues data for c, dropping c when its buffer is full.
func (h *Hub) sendLocked(c *Client, data []byte) {
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		h.log.Warn("client send buffer full, dropping connection", zap.String("client", c.id))
		metrics.WebSocketDroppedTotal.Inc()
		h.removeLocked(c)
	}
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	c.wantsPods, c.wantsFocus = false, false
	c.logs = make(map[models.LogKey]struct{})
	metrics.WebSocketConnectionsActive.Set(float64(len(h.clients)))
}

func cacheSlot(msgType string) string {
	switch msgType {
	case models.MessageAwaitingPattern:
		return models.MessagePods
	case models.MessagePods, models.MessagePod, models.MessageMetrics, models.MessageEvents:
		return msgType
	default:
		return ""
	}
}

var awaitingPayload, _ = json.Marshal(models.ServerMessage{Type: models.MessageAwaitingPattern})

func isAwaiting(data []byte) bool {
	return bytes.Equal(data, awaitingPayload)
}
