package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"group-chat/internal/telemetry"
)

// RelayStats exposes live relay counters.
type RelayStats interface {
	ClientCount() int
	GroupSize(groupID string) int
}

// RegisterDebugRoutes wires debug-only endpoints. Nothing is mounted unless
// enabled.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, relay RelayStats, enabled bool) {
	if !enabled {
		return
	}
	debug := router.Group("/debug")

	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitAudit(c, emitter, telemetry.AuditInfo, "audit test", c.Query("userId"))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// GET /debug/relay?groupId=a,b
	debug.GET("/relay", func(c *gin.Context) {
		if relay == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "relay not configured"})
			return
		}
		groups := gin.H{}
		for _, id := range strings.Split(c.Query("groupId"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				groups[id] = relay.GroupSize(id)
			}
		}
		c.JSON(http.StatusOK, gin.H{"clients": relay.ClientCount(), "groups": groups})
	})
}
