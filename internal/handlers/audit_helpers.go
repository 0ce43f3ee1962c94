package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"group-chat/internal/telemetry"
)

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level, text, userID string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), level, text, userIDPtr(userID))
}

func userIDPtr(userID string) *string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	return &userID
}
