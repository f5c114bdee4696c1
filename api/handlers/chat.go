package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docuchat/docuchat/internal/service/chat"
	"github.com/docuchat/docuchat/pkg/logger"
)

type ChatHandler struct {
	engine *chat.Engine
	logger logger.Logger
}

func NewChatHandler(engine *chat.Engine, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		engine: engine,
		logger: log,
	}
}

// Completions streams the answer as server-sent events. Each fragment is
// a "data:" line with a JSON body; the stream ends with "data: [DONE]".
// A client that disconnects mid-stream still gets the delivered prefix
// recorded in its history.
func (h *ChatHandler) Completions(c *gin.Context) {
	sessionID := c.Query("sessionId")
	question := c.Query("question")
	if sessionID == "" || question == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "sessionId and question are required",
		})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	emit := func(token string) error {
		data, err := json.Marshal(gin.H{"content": token})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	if err := h.engine.Answer(c.Request.Context(), sessionID, question, emit); err != nil {
		h.logger.Error("Chat stream failed",
			logger.String("sessionId", sessionID),
			logger.Error(err),
		)
		// Headers are already sent; report the failure in-stream.
		data, _ := json.Marshal(gin.H{"error": err.Error()})
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		c.Writer.Flush()
		return
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// History returns the session's recorded turns in order.
func (h *ChatHandler) History(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Session ID is required",
		})
		return
	}

	turns, err := h.engine.History(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to read chat history",
			logger.String("sessionId", sessionID),
			logger.Error(err),
		)
		c.JSON(statusFor(err), ErrorResponse{
			Error:   err.Error(),
			Message: "Failed to read chat history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"messages":  turns,
	})
}
