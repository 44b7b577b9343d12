package broadcast

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"whatsapp-hub/internal/quota"
	"whatsapp-hub/internal/template"
)

// TemplateStatus is the last-known lifecycle state for one template.
type TemplateStatus struct {
	TemplateID  string    `json:"template_id"`
	State       string    `json:"state"`
	Detail      string    `json:"detail,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Broadcaster keeps the authoritative pollable snapshot per tenant and
// fans committed changes out to live WebSocket subscribers. The snapshot
// is updated synchronously with the mutation; the push is best-effort and
// may drop, which is why polling always reads the snapshot.
type Broadcaster struct {
	hub *Hub
	log *zap.Logger

	mu        sync.RWMutex
	templates map[string]map[string]TemplateStatus
	quotas    map[string][]quota.ResourceSnapshot
}

func NewBroadcaster(hub *Hub, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		hub:       hub,
		log:       logger,
		templates: make(map[string]map[string]TemplateStatus),
		quotas:    make(map[string][]quota.ResourceSnapshot),
	}
}

// PublishTemplate implements template.Publisher.
func (b *Broadcaster) PublishTemplate(tenantID, templateID string, state template.State, detail string, at time.Time) {
	status := TemplateStatus{
		TemplateID:  templateID,
		State:       string(state),
		Detail:      detail,
		LastUpdated: at,
	}

	b.mu.Lock()
	byTemplate, ok := b.templates[tenantID]
	if !ok {
		byTemplate = make(map[string]TemplateStatus)
		b.templates[tenantID] = byTemplate
	}
	byTemplate[templateID] = status
	b.mu.Unlock()

	if b.hub != nil {
		b.hub.Send(tenantID, "template_status", status)
	}
}

// PublishQuota implements quota.Publisher.
func (b *Broadcaster) PublishQuota(tenantID string, snapshots []quota.ResourceSnapshot) {
	b.mu.Lock()
	b.quotas[tenantID] = snapshots
	b.mu.Unlock()

	if b.hub != nil {
		b.hub.Send(tenantID, "quota", snapshots)
	}
}

// TemplateStatusFor returns the cached status for one template.
func (b *Broadcaster) TemplateStatusFor(tenantID, templateID string) (TemplateStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	status, ok := b.templates[tenantID][templateID]
	return status, ok
}

// QuotaFor returns the cached quota snapshot for a tenant.
func (b *Broadcaster) QuotaFor(tenantID string) ([]quota.ResourceSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snaps, ok := b.quotas[tenantID]
	return snaps, ok
}
