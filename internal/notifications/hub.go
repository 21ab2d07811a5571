package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"secmaster/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 8
	// Max total connections
	maxTotalConns = 2000
)

// ErrConnectionLimit is returned by Register when a limit is reached.
var ErrConnectionLimit = errors.New("connection limit reached")

// Hub maps userID to that user's live websocket clients.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	closed     bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[uint]map[*Client]struct{})}
}

// Register adds a connection for userID, filtered to kinds when non-empty.
func (h *Hub) Register(userID uint, conn *websocket.Conn, kinds []string) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.totalConns >= maxTotalConns {
		return nil, ErrConnectionLimit
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrConnectionLimit
	}

	client := newClient(h, conn, userID, kinds)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnections.Inc()
	return client, nil
}

// UnregisterClient removes client. Safe to call more than once.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.conns[client.UserID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	close(client.Send)
	h.totalConns--
	observability.WebSocketConnections.Dec()
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
}

// Deliver sends data to every client of userID subscribed to kind. It
// returns the number of clients that accepted the frame.
func (h *Hub) Deliver(userID uint, kind string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.conns[userID] {
		if c.Accepts(kind) && c.TrySend(data) {
			sent++
		}
	}
	return sent
}

// IsOnline reports whether userID has at least one live connection.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// HandlePayload routes one pub/sub payload received on channel to the
// matching user's clients.
func (h *Hub) HandlePayload(channel, payload string) {
	userID, err := parseUserChannel(channel)
	if err != nil {
		observability.Logger.Warn("invalid notification channel", slog.String("channel", channel))
		return
	}
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		observability.Logger.Warn("invalid notification payload",
			slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	h.Deliver(userID, msg.Kind, []byte(payload))
}

// StartWiring subscribes the hub to the Notifier's user channels.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, h.HandlePayload)
}

// Shutdown closes every client's send queue; each WritePump then sends a
// close frame and exits.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, clients := range h.conns {
		for c := range clients {
			close(c.Send)
			observability.WebSocketConnections.Dec()
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	return nil
}

func parseUserChannel(channel string) (uint, error) {
	const prefix = "notifications:user:"
	if !strings.HasPrefix(channel, prefix) {
		return 0, fmt.Errorf("not a user channel: %s", channel)
	}
	var userID uint
	if _, err := fmt.Sscanf(strings.TrimPrefix(channel, prefix), "%d", &userID); err != nil {
		return 0, err
	}
	return userID, nil
}
