package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"group-chat/internal/storage"
)

// UploadHandler issues pre-signed upload URLs.
type UploadHandler struct {
	signer storage.Signer
	log    *slog.Logger
}

// NewUploadHandler constructs an UploadHandler. A nil signer means uploads
// are not configured and every request gets 503.
func NewUploadHandler(signer storage.Signer, log *slog.Logger) *UploadHandler {
	return &UploadHandler{signer: signer, log: log}
}

// SignedURL handles GET /upload/signed-url?fileName=&fileType=.
func (h *UploadHandler) SignedURL(c *gin.Context) {
	if h.signer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads are not configured"})
		return
	}

	upload, err := h.signer.SignUpload(c.Request.Context(), c.Query("fileName"), c.Query("fileType"))
	if errors.Is(err, storage.ErrInvalidUpload) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileName and fileType are required"})
		return
	}
	if err != nil {
		h.log.ErrorContext(c.Request.Context(), "presign failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate upload url"})
		return
	}
	c.JSON(http.StatusOK, upload)
}
