package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"group-chat/internal/models"
	"group-chat/internal/observability"
)

var ErrHubClosed = errors.New("relay is closed")

// Hub relays group messages to subscribed websocket clients. Both indexes
// are guarded by mu and every operation updates them in one critical section.
type Hub struct {
	mu      sync.RWMutex
	groups  map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}
	closed  bool
	log     *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		groups:  make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
		log:     log,
	}
}

// Register tracks a connected client before it joins any group.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || c.gone {
		return false
	}
	if _, ok := h.clients[c]; !ok {
		h.clients[c] = make(map[string]struct{})
	}
	return true
}

// Subscribe adds the client to groupID's listeners. The relay does no
// membership check.
func (h *Hub) Subscribe(c *Client, groupID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || c.gone {
		return
	}
	joined, ok := h.clients[c]
	if !ok {
		joined = make(map[string]struct{})
		h.clients[c] = joined
	}
	joined[groupID] = struct{}{}

	listeners, ok := h.groups[groupID]
	if !ok {
		listeners = make(map[*Client]struct{})
		h.groups[groupID] = listeners
	}
	listeners[c] = struct{}{}
}

// Unsubscribe removes the client from groupID's listeners. Idempotent.
func (h *Hub) Unsubscribe(c *Client, groupID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if joined, ok := h.clients[c]; ok {
		delete(joined, groupID)
	}
	h.removeListener(c, groupID)
}

// Disconnect removes the client from every group and closes its send queue.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c)
}

// BroadcastGroupMessage queues msg for every client subscribed to groupID.
// A client whose queue is full is disconnected instead of blocking the sender.
func (h *Hub) BroadcastGroupMessage(groupID string, msg models.Message) error {
	payload, err := json.Marshal(models.GroupEvent{Event: models.EventGroupMessage, Data: &msg})
	if err != nil {
		return err
	}

	var stale []*Client
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	for c := range h.groups[groupID] {
		select {
		case c.send <- payload:
			observability.IncRelayDelivery("delivered")
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	if len(stale) == 0 {
		return nil
	}

	h.mu.Lock()
	for _, c := range stale {
		observability.IncRelayDelivery("dropped")
		observability.IncWSEvent("ws_stale")
		h.log.Warn("dropping slow websocket client", "conn_id", c.info.ConnID, "group_id", groupID)
		h.drop(c)
	}
	h.mu.Unlock()
	return nil
}

// Close disconnects every client. Later broadcasts return ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		h.drop(c)
	}
	h.log.Info("relay closed")
}

// GroupSize returns the number of clients subscribed to groupID.
func (h *Hub) GroupSize(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// drop must be called with mu held for writing.
func (h *Hub) drop(c *Client) {
	if c.gone {
		return
	}
	c.gone = true
	for groupID := range h.clients[c] {
		h.removeListener(c, groupID)
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) removeListener(c *Client, groupID string) {
	listeners, ok := h.groups[groupID]
	if !ok {
		return
	}
	delete(listeners, c)
	if len(listeners) == 0 {
		delete(h.groups, groupID)
	}
}
