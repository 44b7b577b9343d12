package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"whatsapp-hub/internal/config"
	"whatsapp-hub/internal/quota"
	"whatsapp-hub/internal/template"
	"whatsapp-hub/internal/tenant"
	"whatsapp-hub/internal/upstream"
)

// Sender is the outbound side of the upstream provider.
type Sender interface {
	SendTemplate(ctx context.Context, send upstream.TemplateSend) (string, error)
}

// OutboundLog records confirmed sends.
type OutboundLog interface {
	RecordOutbound(tenantID, upstreamID, recipient, templateID, idempotencyKey string)
}

// SendRequest is a tenant's request to send one template message.
type SendRequest struct {
	To         string   `json:"to" binding:"required"`
	Parameters []string `json:"parameters"`
}

// SendResult reports a confirmed upstream send.
type SendResult struct {
	MessageID      string `json:"message_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Gateway authorizes and executes sends. The order is fixed: provider
// enabled, tenant onboarded, template approved, quota reserved, then the
// upstream call; usage commits only after confirmed success so failed
// sends are never charged.
type Gateway struct {
	cfg       *config.Config
	registry  *tenant.Registry
	templates *template.Lifecycle
	ledger    *quota.Ledger
	sender    Sender
	outbound  OutboundLog
	log       *zap.Logger
}

func NewGateway(
	cfg *config.Config,
	registry *tenant.Registry,
	templates *template.Lifecycle,
	ledger *quota.Ledger,
	sender Sender,
	outbound OutboundLog,
	logger *zap.Logger,
) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cfg:       cfg,
		registry:  registry,
		templates: templates,
		ledger:    ledger,
		sender:    sender,
		outbound:  outbound,
		log:       logger,
	}
}

// SendMessage runs the full authorization chain and dispatches the send.
func (g *Gateway) SendMessage(ctx context.Context, tenantID, templateID string, req SendRequest) (*SendResult, error) {
	if !g.cfg.IsEnabled() {
		return nil, serviceUnavailable()
	}

	t, err := g.registry.Get(tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, misconfigured("unknown tenant")
		}
		return nil, infrastructureFault(err)
	}
	if !t.Enabled {
		return nil, misconfigured("tenant is disabled")
	}
	if t.PhoneNumberID == "" {
		return nil, misconfigured("tenant has no phone number id assigned")
	}

	tmpl, err := g.templates.Get(tenantID, templateID)
	if err != nil {
		if errors.Is(err, template.ErrNotFound) {
			return nil, err
		}
		return nil, infrastructureFault(err)
	}
	if template.State(tmpl.State) != template.StateApproved {
		return nil, invalidTemplateState(tmpl.State)
	}

	decision, err := g.ledger.TryConsume(ctx, tenantID)
	if err != nil {
		// Fail closed: an unreachable store denies the send rather than
		// risking an uncounted call against shared upstream capacity.
		return nil, infrastructureFault(err)
	}
	if !decision.Allowed {
		return nil, quotaExceeded(decision)
	}

	// Last point where cancellation is side-effect free. Once the upstream
	// call is dispatched the send may land anyway; retries reconcile via
	// the idempotency key.
	if err := ctx.Err(); err != nil {
		g.ledger.Release(tenantID)
		return nil, err
	}

	idempotencyKey := uuid.NewString()
	messageID, err := g.sender.SendTemplate(ctx, upstream.TemplateSend{
		PhoneNumberID:  t.PhoneNumberID,
		To:             req.To,
		Name:           tmpl.UpstreamName,
		Language:       tmpl.Language,
		Parameters:     req.Parameters,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		g.ledger.Release(tenantID)
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) {
			return nil, upstreamRejected(apiErr.Body, err)
		}
		return nil, infrastructureFault(err)
	}

	g.ledger.RecordUsage(tenantID)
	if g.outbound != nil {
		g.outbound.RecordOutbound(tenantID, messageID, req.To, templateID, idempotencyKey)
	}

	g.log.Info("message sent",
		zap.String("tenant_id", tenantID),
		zap.String("template_id", templateID),
		zap.String("message_id", messageID))

	return &SendResult{MessageID: messageID, IdempotencyKey: idempotencyKey}, nil
}
