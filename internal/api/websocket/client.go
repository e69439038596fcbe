package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kubilitics/kubeluma/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024

	sendBufferSize = 256
)

// Controller handles the requests viewers send over the socket.
type Controller interface {
	RequestFocus(name string) error
	SubscribeLogs(connID string, key models.LogKey, attach func(catchup []models.LogLine)) error
	UnsubscribeLogs(connID string, key models.LogKey)
	ReleaseLogs(connID string)
}

// Client represents a WebSocket client
type Client struct {
	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	hub  *Hub
	ctrl Controller
	log  *zap.Logger

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Client ID for tracking
	id string

	// Subscription, guarded by hub.mu.
	wantsPods  bool
	wantsFocus bool
	logs       map[models.LogKey]struct{}
}

// NewClient creates a new WebSocket client
func NewClient(ctx context.Context, hub *Hub, ctrl Controller, conn *websocket.Conn, id string) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		hub:    hub,
		ctrl:   ctrl,
		log:    hub.log.With(zap.String("client", id)),
		ctx:    clientCtx,
		cancel: cancel,
		id:     id,
		logs:   make(map[models.LogKey]struct{}),
	}
}

func (c *Client) wants(msgType string) bool {
	switch msgType {
	case models.MessageAwaitingPattern:
		return true
	case models.MessagePods:
		return c.wantsPods
	case models.MessagePod, models.MessageMetrics, models.MessageEvents, models.MessageEvent:
		return c.wantsFocus
	default:
		return false
	}
}

// ReadPump pumps messages from the websocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.ctrl.ReleaseLogs(c.id)
		c.cancel()
		c.conn.Close()
		c.log.Debug("websocket client disconnected")
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.cancel()
}

// handleMessage applies one viewer request. Malformed or unknown requests are logged and ignored.
func (c *Client) handleMessage(message []byte) {
	var msg models.ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.Debug("ignoring malformed message", zap.Error(err))
		return
	}

	switch {
	case msg.Action == models.ActionSubscribe && msg.Channel == models.ChannelPod:
		c.hub.subscribePod(c)

	case msg.Action == models.ActionSubscribe && msg.Channel == models.ChannelLogs:
		key := models.LogKey{Pod: msg.Pod, Container: msg.Container}
		err := c.ctrl.SubscribeLogs(c.id, key, func(catchup []models.LogLine) {
			c.hub.attachLogs(c, key, catchup)
		})
		if err != nil {
			c.log.Debug("log subscription rejected", zap.String("stream", key.String()), zap.Error(err))
		}

	case msg.Action == models.ActionUnsubscribe && msg.Channel == models.ChannelLogs:
		key := models.LogKey{Pod: msg.Pod, Container: msg.Container}
		if c.hub.detachLogs(c, key) {
			c.ctrl.UnsubscribeLogs(c.id, key)
		}

	case msg.Action == models.ActionFocus:
		if err := c.ctrl.RequestFocus(msg.Pod); err != nil {
			c.log.Debug("focus request rejected", zap.String("pod", msg.Pod), zap.Error(err))
		}

	default:
		c.log.Debug("ignoring unknown request", zap.String("action", msg.Action), zap.String("channel", msg.Channel))
	}
}
