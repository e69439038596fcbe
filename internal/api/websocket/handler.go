package websocket

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler upgrades viewer connections and attaches them to the hub.
type Handler struct {
	hub      *Hub
	ctrl     Controller
	ctx      context.Context
	upgrader websocket.Upgrader
}

// NewHandler creates a handler accepting the given origins; "*" accepts any.
func NewHandler(ctx context.Context, hub *Hub, ctrl Controller, allowedOrigins []string) *Handler {
	h := &Handler{hub: hub, ctrl: ctrl, ctx: ctx}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	allowAll := false
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		if allowAll || origin == "" {
			return true
		}
		return set[strings.TrimRight(origin, "/")]
	}
}

// ServeWS handles websocket requests from clients
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	client := NewClient(h.ctx, h.hub, h.ctrl, conn, clientID)

	// Registered before the pumps start so the first request finds the client.
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	client.log.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))
}
