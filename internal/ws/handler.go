package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"group-chat/internal/observability"
)

const wsRoutingKey = "ws_events.groups"

// EventSink receives connection lifecycle events.
type EventSink interface {
	Emit(ctx context.Context, routingKey, name string, payload any)
}

// Handler upgrades GET /ws requests and runs the client pumps.
type Handler struct {
	hub        *Hub
	events     EventSink
	log        *slog.Logger
	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewHandler constructs a Handler. events may be nil.
func NewHandler(hub *Hub, events EventSink, sendBuffer int, log *slog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		events:     events,
		log:        log,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the connection. Subscriptions are managed by the client
// with join-group and leave-group frames.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("group-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}

	info := newConnInfo(c.Request, strings.TrimSpace(c.Query("userId")), span.SpanContext().TraceID().String())
	client := newClient(h.hub, conn, h.sendBuffer, info, h.log)
	if !h.hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.emit(ctx, "ws_connect", info.payload("ws_connect", ""))
	h.log.DebugContext(ctx, "websocket connected", "conn_id", info.ConnID, "user_id", info.UserID, "ip", info.IP)

	// The handshake context ends with this request; lifecycle events after it
	// only need its values.
	eventCtx := context.WithoutCancel(ctx)
	go client.writePump()
	go func() {
		reason := client.readPump()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.emit(eventCtx, "ws_disconnect", info.payload("ws_disconnect", reason))
		h.log.Debug("websocket disconnected", "conn_id", info.ConnID, "reason", reason)
	}()
}

func (h *Handler) emit(ctx context.Context, name string, payload map[string]any) {
	if h.events == nil {
		return
	}
	h.events.Emit(ctx, wsRoutingKey, name, payload)
}
