package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"group-chat/internal/models"
	"group-chat/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection and its outbound queue.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	info ConnInfo
	log  *slog.Logger

	// gone is set once the hub has dropped the client; guarded by hub.mu.
	gone bool
}

func newClient(hub *Hub, conn *websocket.Conn, buffer int, info ConnInfo, log *slog.Logger) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, buffer),
		info: info,
		log:  log.With("conn_id", info.ConnID),
	}
}

// readPump handles subscription frames until the connection fails. It
// returns the reason the connection ended.
func (c *Client) readPump() string {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("websocket read error", "error", err)
				observability.IncWSEvent("ws_error")
			}
			return err.Error()
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var event models.ClientEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.log.Debug("ignoring malformed frame", "error", err)
		observability.IncWSEvent("malformed")
		return
	}

	groupID := strings.TrimSpace(event.GroupID)
	switch event.Event {
	case models.EventJoinGroup:
		if groupID == "" {
			return
		}
		c.hub.Subscribe(c, groupID)
		observability.IncWSEvent(models.EventJoinGroup)
		c.log.Debug("joined group", "group_id", groupID)
	case models.EventLeaveGroup:
		c.hub.Unsubscribe(c, groupID)
		observability.IncWSEvent(models.EventLeaveGroup)
		c.log.Debug("left group", "group_id", groupID)
	default:
		c.log.Debug("ignoring unknown event", "event", event.Event)
		observability.IncWSEvent("unknown")
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
