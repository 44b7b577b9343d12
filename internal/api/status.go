package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-hub/internal/broadcast"
	"whatsapp-hub/internal/quota"
)

type StatusHandler struct {
	Ledger      *quota.Ledger
	Broadcaster *broadcast.Broadcaster
	Hub         *broadcast.Hub
}

func NewStatusHandler(ledger *quota.Ledger, broadcaster *broadcast.Broadcaster, hub *broadcast.Hub) *StatusHandler {
	return &StatusHandler{Ledger: ledger, Broadcaster: broadcaster, Hub: hub}
}

// GetQuota serves the per-resource usage view. The ledger is authoritative;
// the broadcaster cache only exists for push parity.
func (h *StatusHandler) GetQuota(c *gin.Context) {
	snaps, err := h.Ledger.Snapshot(c.Param("tenantId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resources": snaps})
}

// Subscribe upgrades to the per-tenant WebSocket status feed.
func (h *StatusHandler) Subscribe(c *gin.Context) {
	h.Hub.ServeWs(c.Writer, c.Request, c.Param("tenantId"))
}
