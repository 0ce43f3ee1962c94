package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"group-chat/internal/models"
	"group-chat/internal/telemetry"
)

// MembershipService is what GroupHandler needs from the membership layer.
type MembershipService interface {
	CreateGroup(ctx context.Context, name, adminID string, isPublic bool) (models.Group, error)
	ListPublicGroups(ctx context.Context) ([]models.Group, error)
	ListUserGroups(ctx context.Context, userID string) ([]models.Group, error)
	JoinGroup(ctx context.Context, groupID, userID string) error
	AddMember(ctx context.Context, groupID, requesterID, userID string) (models.Group, error)
	RemoveMember(ctx context.Context, groupID, requesterID, userID string) (models.Group, error)
	ListMembers(ctx context.Context, groupID, requesterID string) ([]models.User, error)
}

// GroupHandler manages group-related endpoints.
type GroupHandler struct {
	groups MembershipService
	audit  *telemetry.AuditEmitter
	log    *slog.Logger
}

// NewGroupHandler constructs a GroupHandler. audit may be nil.
func NewGroupHandler(groups MembershipService, audit *telemetry.AuditEmitter, log *slog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, audit: audit, log: log}
}

// CreateGroup handles POST /groups/create.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Admin    string `json:"admin" binding:"required"`
		IsPublic bool   `json:"isPublic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, telemetry.AuditError, "invalid request payload", "")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), req.Name, req.Admin, req.IsPublic)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	emitAudit(c, h.audit, telemetry.AuditInfo, "Group created", req.Admin)
	c.JSON(http.StatusCreated, group)
}

// ListPublicGroups handles GET /groups/public.
func (h *GroupHandler) ListPublicGroups(c *gin.Context) {
	groups, err := h.groups.ListPublicGroups(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// ListUserGroups handles GET /groups/user/:userId.
func (h *GroupHandler) ListUserGroups(c *gin.Context) {
	groups, err := h.groups.ListUserGroups(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// JoinGroup handles POST /groups/join.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	var req struct {
		GroupID string `json:"groupId" binding:"required"`
		UserID  string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.groups.JoinGroup(c.Request.Context(), req.GroupID, req.UserID); err != nil {
		respondError(c, h.log, err)
		return
	}

	emitAudit(c, h.audit, telemetry.AuditInfo, "Joined group", req.UserID)
	c.JSON(http.StatusOK, gin.H{"message": "Joined group successfully"})
}

// AddMember handles POST /groups/:groupId/members.
func (h *GroupHandler) AddMember(c *gin.Context) {
	var req struct {
		AdminID string `json:"adminId" binding:"required"`
		UserID  string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groups.AddMember(c.Request.Context(), c.Param("groupId"), req.AdminID, req.UserID)
	if err != nil {
		emitAudit(c, h.audit, telemetry.AuditError, "add member rejected", req.AdminID)
		respondError(c, h.log, err)
		return
	}

	emitAudit(c, h.audit, telemetry.AuditInfo, "Member added", req.AdminID)
	c.JSON(http.StatusOK, group)
}

// RemoveMember handles DELETE /groups/:groupId/members/:userId. The admin id
// comes from the JSON body, or from ?adminId= for clients that cannot send a
// body with DELETE.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	var req struct {
		AdminID string `json:"adminId"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.AdminID == "" {
		req.AdminID = c.Query("adminId")
	}
	if req.AdminID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "adminId is required"})
		return
	}

	group, err := h.groups.RemoveMember(c.Request.Context(), c.Param("groupId"), req.AdminID, c.Param("userId"))
	if err != nil {
		emitAudit(c, h.audit, telemetry.AuditError, "remove member rejected", req.AdminID)
		respondError(c, h.log, err)
		return
	}

	emitAudit(c, h.audit, telemetry.AuditInfo, "Member removed", req.AdminID)
	c.JSON(http.StatusOK, group)
}

// ListMembers handles GET /groups/:groupId/members.
func (h *GroupHandler) ListMembers(c *gin.Context) {
	users, err := h.groups.ListMembers(c.Request.Context(), c.Param("groupId"), c.Query("userId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, users)
}
