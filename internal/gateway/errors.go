package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"whatsapp-hub/internal/quota"
)

// ErrKind is the machine-readable classification attached to every denial.
type ErrKind string

const (
	KindServiceUnavailable   ErrKind = "service_unavailable"
	KindMisconfigured        ErrKind = "misconfigured"
	KindInvalidTemplateState ErrKind = "invalid_template_state"
	KindQuotaExceeded        ErrKind = "quota_exceeded"
	KindInfrastructureFault  ErrKind = "infrastructure_fault"
	KindUpstreamRejected     ErrKind = "upstream_rejected"
)

// Error carries the denial kind plus a human-readable reason. Quota
// denials additionally report the exhausted window and when it clears.
type Error struct {
	Kind    ErrKind
	Message string
	Detail  string
	Window  quota.Kind
	RetryAt time.Time
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, string(e.Kind))
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retryable reports whether the caller can retry without operator or
// state intervention.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Kind == KindQuotaExceeded || e.Kind == KindInfrastructureFault
}

// KindOf extracts the denial kind, or empty if err is not a gateway error.
func KindOf(err error) ErrKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

func serviceUnavailable() *Error {
	return &Error{
		Kind:    KindServiceUnavailable,
		Message: "provider is not configured",
	}
}

func misconfigured(reason string) *Error {
	return &Error{
		Kind:    KindMisconfigured,
		Message: reason,
	}
}

func invalidTemplateState(state string) *Error {
	return &Error{
		Kind:    KindInvalidTemplateState,
		Message: fmt.Sprintf("template is %s, only APPROVED templates can be sent", state),
	}
}

func quotaExceeded(d quota.Decision) *Error {
	return &Error{
		Kind:    KindQuotaExceeded,
		Message: fmt.Sprintf("quota exhausted for the %s window", d.DeniedKind),
		Window:  d.DeniedKind,
		RetryAt: d.RetryAt,
	}
}

func infrastructureFault(cause error) *Error {
	return &Error{
		Kind:    KindInfrastructureFault,
		Message: "backing store or transport unavailable",
		Cause:   cause,
	}
}

func upstreamRejected(detail string, cause error) *Error {
	return &Error{
		Kind:    KindUpstreamRejected,
		Message: "upstream provider rejected the call",
		Detail:  detail,
		Cause:   cause,
	}
}
