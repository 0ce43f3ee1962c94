package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"group-chat/internal/observability"
)

// ConnInfo identifies a connection in logs and lifecycle events.
type ConnInfo struct {
	ConnID  string
	UserID  string
	TraceID string
	observability.RequestMeta
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, userID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		TraceID:     traceID,
		RequestMeta: observability.MetaFromRequest(r),
		ConnectedAt: time.Now(),
	}
}

func (i ConnInfo) payload(event, reason string) map[string]any {
	return map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     i.ConnID,
			"duration_ms": time.Since(i.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":    i.UserID,
			"device_id":  i.DeviceID,
			"ip":         i.IP,
			"user_agent": i.UserAgent,
		},
	}
}
