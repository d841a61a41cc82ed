package handler

import (
	"errors"
	"net/http"

	"renterchat/internal/session"

	"github.com/gin-gonic/gin"
)

// ConversationHandler exposes stored client memory for audit and cleanup
type ConversationHandler struct {
	store *session.Store
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(store *session.Store) *ConversationHandler {
	return &ConversationHandler{store: store}
}

// Get handles GET /api/conversations/:client_id
func (h *ConversationHandler) Get(c *gin.Context) {
	view, err := h.store.View(c.Request.Context(), c.Param("client_id"))
	if err != nil {
		sessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// Delete handles DELETE /api/memory/:client_id
func (h *ConversationHandler) Delete(c *gin.Context) {
	clientID := c.Param("client_id")
	if err := h.store.Delete(c.Request.Context(), clientID); err != nil {
		sessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "client_id": clientID})
}

// Stats handles GET /api/memory/stats
func (h *ConversationHandler) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read memory stats: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case errors.Is(err, session.ErrInvalidClientID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
