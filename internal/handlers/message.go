package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"group-chat/internal/models"
	"group-chat/internal/services"
	"group-chat/internal/telemetry"
)

// MessageService is what MessageHandler needs from the message layer.
type MessageService interface {
	SendMessage(ctx context.Context, in services.SendMessageInput) (models.Message, error)
	GetGroupMessages(ctx context.Context, groupID, requesterID string) ([]models.Message, error)
}

// MessageHandler serves group message history and posting.
type MessageHandler struct {
	messages MessageService
	audit    *telemetry.AuditEmitter
	log      *slog.Logger
}

// NewMessageHandler constructs a MessageHandler. audit may be nil.
func NewMessageHandler(messages MessageService, audit *telemetry.AuditEmitter, log *slog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, audit: audit, log: log}
}

// PostMessage handles POST /messages.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req struct {
		Text       string             `json:"text"`
		GroupID    string             `json:"groupId" binding:"required"`
		Sender     string             `json:"sender" binding:"required"`
		SenderName string             `json:"senderName"`
		File       *models.Attachment `json:"file"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, telemetry.AuditError, "invalid request payload", "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.SendMessage(c.Request.Context(), services.SendMessageInput{
		GroupID:    req.GroupID,
		SenderID:   req.Sender,
		SenderName: req.SenderName,
		Text:       req.Text,
		File:       req.File,
	})
	if err != nil {
		emitAudit(c, h.audit, telemetry.AuditError, "message rejected", req.Sender)
		respondError(c, h.log, err)
		return
	}

	emitAudit(c, h.audit, telemetry.AuditInfo, "Group message sent", req.Sender)
	c.JSON(http.StatusCreated, msg)
}

// GetGroupMessages handles GET /messages/:groupId?userId=.
func (h *MessageHandler) GetGroupMessages(c *gin.Context) {
	msgs, err := h.messages.GetGroupMessages(c.Request.Context(), c.Param("groupId"), c.Query("userId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
