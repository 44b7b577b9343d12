package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-hub/internal/quota"
	"whatsapp-hub/internal/tenant"
)

// AdminHandler is the operator surface: tenant onboarding, limit plans,
// and the quota reset override.
type AdminHandler struct {
	Registry *tenant.Registry
	Ledger   *quota.Ledger
}

func NewAdminHandler(registry *tenant.Registry, ledger *quota.Ledger) *AdminHandler {
	return &AdminHandler{Registry: registry, Ledger: ledger}
}

type createTenantRequest struct {
	Name              string `json:"name" binding:"required"`
	PlanName          string `json:"plan_name"`
	MessagesPerSecond *int64 `json:"messages_per_second"`
	MessagesPerDay    *int64 `json:"messages_per_day"`
	MessagesPerMonth  *int64 `json:"messages_per_month"`
}

func (r createTenantRequest) limits() quota.Limits {
	return quota.Limits{
		PerSecond: limitOrUnlimited(r.MessagesPerSecond),
		PerDay:    limitOrUnlimited(r.MessagesPerDay),
		PerMonth:  limitOrUnlimited(r.MessagesPerMonth),
	}
}

// limitOrUnlimited treats an omitted limit as unlimited. An explicit zero
// is a real limit that denies every send.
func limitOrUnlimited(v *int64) int64 {
	if v == nil {
		return quota.Unlimited
	}
	return *v
}

func (h *AdminHandler) CreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.Registry.Create(req.Name, req.PlanName, req.limits())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *AdminHandler) GetTenant(c *gin.Context) {
	t, err := h.Registry.Get(c.Param("tenantId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type assignPhoneRequest struct {
	PhoneNumberID string `json:"phone_number_id" binding:"required"`
}

func (h *AdminHandler) AssignPhoneNumber(c *gin.Context) {
	var req assignPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Registry.AssignPhoneNumber(c.Param("tenantId"), req.PhoneNumberID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "assigned"})
}

func (h *AdminHandler) SetPlan(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Registry.SetPlan(c.Param("tenantId"), req.PlanName, req.limits()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "plan updated"})
}

func (h *AdminHandler) ForceQuotaReset(c *gin.Context) {
	tenantID := c.Param("tenantId")
	if _, err := h.Registry.Get(tenantID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.Ledger.ForceReset(tenantID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "quota reset"})
}
