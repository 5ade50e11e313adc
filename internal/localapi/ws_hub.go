package localapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"chipdeck/internal/protocol"
)

const writeTimeout = 500 * time.Millisecond

type WSHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	seq     atomic.Uint64
	initial func(ctx context.Context) []protocol.Message
	logger  *slog.Logger
}

// NewWSHub builds a hub; initial, when set, lists the events a client receives on join.
func NewWSHub(initial func(ctx context.Context) []protocol.Message, logger *slog.Logger) *WSHub {
	return &WSHub{clients: map[*websocket.Conn]struct{}{}, initial: initial, logger: logger}
}

func (h *WSHub) nextID() string {
	return fmt.Sprintf("evt_%d", h.seq.Add(1))
}

func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	ctx := r.Context()
	if h.initial != nil {
		for _, msg := range h.initial(ctx) {
			if err := h.write(ctx, conn, msg); err != nil {
				_ = conn.Close(websocket.StatusInternalError, "initial sync failed")
				return
			}
		}
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Debug("websocket client joined", "clients", n)
	}

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast writes msg to every connected client. Slow clients lose the message.
func (h *WSHub) Broadcast(ctx context.Context, msg protocol.Message) {
	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		_ = h.write(ctx, c, msg)
	}
}

func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WSHub) write(ctx context.Context, c *websocket.Conn, msg protocol.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(wctx, websocket.MessageText, raw)
}
