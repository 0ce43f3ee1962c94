package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"group-chat/internal/repositories"
)

// UserHandler exposes read-only lookups against the user directory.
type UserHandler struct {
	users repositories.UserDirectory
	log   *slog.Logger
}

func NewUserHandler(users repositories.UserDirectory, log *slog.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// GetByEmail handles GET /users?email=.
func (h *UserHandler) GetByEmail(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), email)
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
