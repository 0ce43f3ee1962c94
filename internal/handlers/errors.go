package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"group-chat/internal/services"
)

var statusBySentinel = []struct {
	err    error
	status int
}{
	{services.ErrNotFound, http.StatusNotFound},
	{services.ErrForbidden, http.StatusForbidden},
	{services.ErrConflict, http.StatusBadRequest},
	{services.ErrInvalid, http.StatusBadRequest},
}

// respondError maps domain errors to status codes. Anything else is logged
// and reported as a bare 500.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	for _, m := range statusBySentinel {
		if errors.Is(err, m.err) {
			msg := strings.TrimPrefix(err.Error(), m.err.Error()+": ")
			c.JSON(m.status, gin.H{"error": msg})
			return
		}
	}
	log.ErrorContext(c.Request.Context(), "request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
