package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"group-chat/internal/observability"
	"group-chat/internal/telemetry"
)

const RequestIDKey = "request_id"

// RequestID reuses the caller's X-Request-ID or mints one, and exposes it on
// the gin context, the request context and the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := observability.MetaFromRequest(c.Request).RequestID
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Request = c.Request.WithContext(telemetry.WithRequestID(c.Request.Context(), requestID))
		c.Writer.Header().Set(observability.RequestIDHeader, requestID)
		c.Next()
	}
}

// AccessLog writes one structured line per request.
func AccessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		meta := observability.MetaFromRequest(c.Request)
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		log.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", meta.IP,
			"device_id", meta.DeviceID,
			"request_id", c.GetString(RequestIDKey),
		)
	}
}
