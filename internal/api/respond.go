package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"whatsapp-hub/internal/gateway"
	"whatsapp-hub/internal/template"
	"whatsapp-hub/internal/tenant"
	"whatsapp-hub/internal/upstream"
)

type errorBody struct {
	Kind      string     `json:"kind"`
	Message   string     `json:"message"`
	Detail    string     `json:"detail,omitempty"`
	Window    string     `json:"window,omitempty"`
	RetryAt   *time.Time `json:"retry_at,omitempty"`
	Retryable bool       `json:"retryable"`
}

// respondError maps every denial to a status code plus a machine-readable
// kind and human-readable reason.
func respondError(c *gin.Context, err error) {
	var ge *gateway.Error
	if errors.As(err, &ge) {
		body := errorBody{
			Kind:      string(ge.Kind),
			Message:   ge.Message,
			Detail:    ge.Detail,
			Window:    string(ge.Window),
			Retryable: ge.Retryable(),
		}
		if !ge.RetryAt.IsZero() {
			body.RetryAt = &ge.RetryAt
		}
		c.JSON(statusFor(ge.Kind), gin.H{"error": body})
		return
	}

	var apiErr *upstream.APIError
	switch {
	case errors.Is(err, tenant.ErrNotFound), errors.Is(err, template.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errorBody{Kind: "not_found", Message: err.Error()}})
	case errors.Is(err, template.ErrServiceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errorBody{
			Kind:    string(gateway.KindServiceUnavailable),
			Message: err.Error(),
		}})
	case errors.Is(err, template.ErrInvalidTransition), errors.Is(err, template.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": errorBody{
			Kind:    string(gateway.KindInvalidTemplateState),
			Message: err.Error(),
		}})
	case errors.Is(err, tenant.ErrPhoneTaken), errors.Is(err, tenant.ErrPhoneAssigned):
		c.JSON(http.StatusConflict, gin.H{"error": errorBody{Kind: "conflict", Message: err.Error()}})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": errorBody{
			Kind:    string(gateway.KindUpstreamRejected),
			Message: "upstream provider rejected the call",
			Detail:  apiErr.Body,
		}})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(499, gin.H{"error": errorBody{Kind: "canceled", Message: "request canceled"}})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorBody{
			Kind:      string(gateway.KindInfrastructureFault),
			Message:   err.Error(),
			Retryable: true,
		}})
	}
}

func statusFor(kind gateway.ErrKind) int {
	switch kind {
	case gateway.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case gateway.KindMisconfigured:
		return http.StatusUnprocessableEntity
	case gateway.KindInvalidTemplateState:
		return http.StatusConflict
	case gateway.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case gateway.KindInfrastructureFault:
		return http.StatusServiceUnavailable
	case gateway.KindUpstreamRejected:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
