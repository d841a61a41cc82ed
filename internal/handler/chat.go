package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"renterchat/internal/model"
	"renterchat/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Replier answers renter messages
type Replier interface {
	Reply(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error)
	ReplyStream(ctx context.Context, req *model.ChatRequest, onDelta func(string) error) (*model.ChatResponse, error)
}

// ChatHandler handles conversation turns
type ChatHandler struct {
	agent  Replier
	logger *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(agent Replier, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{agent: agent, logger: logger}
}

// Reply handles POST /api/reply
func (h *ChatHandler) Reply(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	resp, err := h.agent.Reply(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ReplyStream handles POST /api/reply/stream - SSE streaming reply
func (h *ChatHandler) ReplyStream(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if _, err := service.ValidateEnvelope(&req); err != nil {
		h.fail(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	sendSSE(c, "start", map[string]any{"client_id": req.ResolveClientID()})
	flusher.Flush()

	var streamed strings.Builder
	resp, err := h.agent.ReplyStream(c.Request.Context(), &req, func(delta string) error {
		if err := c.Request.Context().Err(); err != nil {
			return err
		}
		streamed.WriteString(delta)
		sendSSE(c, "delta", map[string]any{"text": delta})
		flusher.Flush()
		return nil
	})
	if err != nil {
		h.logger.Warn("Streaming reply failed", zap.Error(err))
		sendSSE(c, "error", map[string]any{"error": err.Error()})
		flusher.Flush()
		return
	}

	// The streamed text is superseded when composition failed midway
	if streamed.Len() > 0 && streamed.String() != resp.Reply {
		sendSSE(c, "replace", map[string]any{"text": resp.Reply})
	}
	sendSSE(c, "result", resp)
	sendSSE(c, "done", nil)
	flusher.Flush()
}

func (h *ChatHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidEnvelope) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, context.Canceled) {
		// Client went away; nothing useful to write
		c.Status(499)
		return
	}

	h.logger.Error("Reply failed", zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Reply failed: " + err.Error()})
}

// sendSSE writes one Server-Sent Event
func sendSSE(c *gin.Context, event string, data any) {
	if data == nil {
		fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", event)
		return
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"error\": \"JSON marshal failed\"}\n\n")
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, jsonData)
}
