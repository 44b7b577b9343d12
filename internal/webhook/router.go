package webhook

import (
	"errors"

	"go.uber.org/zap"

	"whatsapp-hub/internal/template"
	"whatsapp-hub/internal/tenant"
	"whatsapp-hub/pkg/models"
)

// DeliverySink receives message delivery status updates for a tenant.
type DeliverySink interface {
	RecordStatus(tenantID, messageID, status string)
}

// Router resolves the owning tenant for an inbound event by phone number
// id and dispatches the payload by event kind. It holds no state of its
// own; the phone index lives in the tenant registry.
type Router struct {
	registry  *tenant.Registry
	lifecycle *template.Lifecycle
	sink      DeliverySink
	log       *zap.Logger
}

func NewRouter(registry *tenant.Registry, lifecycle *template.Lifecycle, sink DeliverySink, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry:  registry,
		lifecycle: lifecycle,
		sink:      sink,
		log:       logger,
	}
}

// Route dispatches one event to the owning tenant's handlers. Events for
// unassigned phone number ids are dropped with a warning; that happens
// routinely mid-onboarding and must never break the ingestion path. The
// returned tenant id is empty when the event was dropped.
func (r *Router) Route(ev models.Event) (string, error) {
	t, err := r.registry.FindByPhoneNumberID(ev.PhoneNumberID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			r.log.Warn("webhook event for unassigned phone number id dropped",
				zap.String("phone_number_id", ev.PhoneNumberID),
				zap.String("kind", string(ev.Kind)))
			return "", nil
		}
		return "", err
	}

	switch ev.Kind {
	case models.EventKindStatus:
		if ev.Status != nil && r.sink != nil {
			r.sink.RecordStatus(t.ID, ev.Status.MessageID, ev.Status.Status)
		}
	case models.EventKindTemplateDecision:
		if ev.Decision == nil {
			break
		}
		if err := r.applyDecision(t.ID, *ev.Decision); err != nil {
			return t.ID, err
		}
	default:
		r.log.Warn("unknown webhook event kind dropped", zap.String("kind", string(ev.Kind)))
	}
	return t.ID, nil
}

func (r *Router) applyDecision(tenantID string, d models.TemplateDecision) error {
	decision, err := template.ParseDecision(d.Decision)
	if err != nil {
		r.log.Warn("unparseable template decision dropped",
			zap.String("tenant_id", tenantID),
			zap.String("decision", d.Decision))
		return nil
	}

	err = r.lifecycle.ApplyDecision(tenantID, d.UpstreamName, decision, d.Reason)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, template.ErrNotFound):
		// No template matches the upstream name. Routed nowhere, not an error.
		r.log.Warn("template decision for unknown upstream name dropped",
			zap.String("upstream_name", d.UpstreamName))
		return nil
	case errors.Is(err, template.ErrConflict):
		// A concurrent delivery already settled the state differently.
		r.log.Warn("conflicting template decision dropped",
			zap.String("upstream_name", d.UpstreamName),
			zap.Error(err))
		return nil
	default:
		return err
	}
}
