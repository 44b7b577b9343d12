package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-hub/internal/broadcast"
	"whatsapp-hub/internal/template"
)

type TemplateHandler struct {
	Lifecycle   *template.Lifecycle
	Broadcaster *broadcast.Broadcaster
}

func NewTemplateHandler(lifecycle *template.Lifecycle, broadcaster *broadcast.Broadcaster) *TemplateHandler {
	return &TemplateHandler{Lifecycle: lifecycle, Broadcaster: broadcaster}
}

type createTemplateRequest struct {
	Name     string `json:"name" binding:"required"`
	Language string `json:"language" binding:"required"`
	Category string `json:"category"`
	Body     string `json:"body" binding:"required"`
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.Lifecycle.Create(c.Param("tenantId"), req.Name, req.Language, req.Category, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	templates, err := h.Lifecycle.List(c.Param("tenantId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (h *TemplateHandler) SubmitTemplate(c *gin.Context) {
	t, err := h.Lifecycle.Submit(c.Request.Context(), c.Param("tenantId"), c.Param("templateId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TemplateHandler) PauseTemplate(c *gin.Context) {
	t, err := h.Lifecycle.Pause(c.Param("tenantId"), c.Param("templateId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TemplateHandler) ResumeTemplate(c *gin.Context) {
	t, err := h.Lifecycle.Resume(c.Param("tenantId"), c.Param("templateId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TemplateHandler) DisableTemplate(c *gin.Context) {
	t, err := h.Lifecycle.Disable(c.Param("tenantId"), c.Param("templateId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// GetTemplateStatus serves the pull fallback: the committed state is read
// from the snapshot when cached and from the store otherwise, so a client
// that missed a push still observes the transition.
func (h *TemplateHandler) GetTemplateStatus(c *gin.Context) {
	tenantID := c.Param("tenantId")
	templateID := c.Param("templateId")

	if status, ok := h.Broadcaster.TemplateStatusFor(tenantID, templateID); ok {
		c.JSON(http.StatusOK, status)
		return
	}

	t, err := h.Lifecycle.Get(tenantID, templateID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, broadcast.TemplateStatus{
		TemplateID:  t.ID,
		State:       t.State,
		Detail:      t.RejectionReason,
		LastUpdated: t.LastTransitionAt,
	})
}
