package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"whatsapp-hub/internal/gateway"
)

type MessagingHandler struct {
	Gateway  *gateway.Gateway
	Messages *gateway.MessageLog
}

func NewMessagingHandler(gw *gateway.Gateway, messages *gateway.MessageLog) *MessagingHandler {
	return &MessagingHandler{Gateway: gw, Messages: messages}
}

type sendMessageRequest struct {
	TemplateID string   `json:"template_id" binding:"required"`
	To         string   `json:"to" binding:"required"`
	Parameters []string `json:"parameters"`
}

func (h *MessagingHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Gateway.SendMessage(c.Request.Context(), c.Param("tenantId"), req.TemplateID, gateway.SendRequest{
		To:         req.To,
		Parameters: req.Parameters,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *MessagingHandler) ListMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	messages, err := h.Messages.ListByTenant(c.Param("tenantId"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}
