package handlers

import (
	"fmt"
	"net/http"

	"deallens-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChatHandler handles free-form question answering over indexed documents
type ChatHandler struct {
	retriever   service.Retriever
	synthesizer service.Synthesizer
}

// NewChatHandler creates a new chat handler
func NewChatHandler(retriever service.Retriever, synthesizer service.Synthesizer) *ChatHandler {
	return &ChatHandler{retriever: retriever, synthesizer: synthesizer}
}

// ChatRequest is the body of a chat message
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// Chat handles POST /api/chat, answering against the whole index.
func (h *ChatHandler) Chat(c *gin.Context) {
	h.answer(c, nil)
}

// ChatWithDocument handles POST /api/chat/:id, answering against a single
// document's chunks.
func (h *ChatHandler) ChatWithDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid document ID format",
			},
		})
		return
	}
	h.answer(c, &id)
}

func (h *ChatHandler) answer(c *gin.Context, documentID *uuid.UUID) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "message is required",
			},
		})
		return
	}

	ctx := c.Request.Context()

	retrieved, err := h.retriever.Retrieve(ctx, req.Message, documentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RETRIEVAL_FAILED",
				"message": fmt.Sprintf("Failed to retrieve context: %v", err),
			},
		})
		return
	}

	answer, err := h.synthesizer.Synthesize(ctx, req.Message, retrieved, nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SYNTHESIS_FAILED",
				"message": fmt.Sprintf("Failed to synthesize answer: %v", err),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"answer":         answer,
			"context_texts":  len(retrieved.Texts),
			"context_images": len(retrieved.Images),
		},
	})
}
