package template

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"whatsapp-hub/internal/config"
	"whatsapp-hub/internal/models"
)

// State is a template's position in the external approval lifecycle.
type State string

const (
	StateDraft    State = "DRAFT"
	StatePending  State = "PENDING"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
	StatePaused   State = "PAUSED"
	StateDisabled State = "DISABLED"
)

func (s State) String() string { return string(s) }

func (s State) IsValid() bool {
	switch s {
	case StateDraft, StatePending, StateApproved, StateRejected, StatePaused, StateDisabled:
		return true
	}
	return false
}

// ParseDecision maps an upstream decision event to a lifecycle state.
func ParseDecision(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StateApproved, StateRejected, StatePaused, StateDisabled:
		return st, nil
	}
	return "", fmt.Errorf("unknown template decision %q", s)
}

// transitions is the single source of truth for transition validity.
// DISABLED is terminal; a rejected template is edited and resubmitted as a
// new draft, never resubmitted in place.
var transitions = map[State]map[State]bool{
	StateDraft:    {StatePending: true},
	StatePending:  {StateApproved: true, StateRejected: true},
	StateApproved: {StatePaused: true, StateDisabled: true},
	StatePaused:   {StateApproved: true},
}

func canTransition(from, to State) bool {
	return transitions[from][to]
}

var (
	ErrNotFound           = errors.New("template not found")
	ErrServiceUnavailable = errors.New("provider is not configured")
	ErrInvalidTransition  = errors.New("invalid template transition")
	ErrConflict           = errors.New("conflicting template decision")
)

// Store persists templates. The lifecycle is the sole writer of state.
type Store interface {
	Get(id string) (*models.Template, error)
	GetByUpstreamName(tenantID, name string) (*models.Template, error)
	ListByTenant(tenantID string) ([]models.Template, error)
	Create(t *models.Template) error
	Update(t *models.Template) error
}

// Submitter sends a draft to the upstream provider for review and returns
// the upstream-assigned template name.
type Submitter interface {
	SubmitTemplate(ctx context.Context, name, language, category, body string) (string, error)
}

// Publisher receives every committed transition, synchronously with the
// state mutation.
type Publisher interface {
	PublishTemplate(tenantID, templateID string, state State, detail string, at time.Time)
}

// Lifecycle owns template state transitions. Transitions are serialized
// per template; concurrent webhook replays observe the idempotent no-op
// path instead of double-applying.
type Lifecycle struct {
	store     Store
	cfg       *config.Config
	submitter Submitter
	publisher Publisher
	log       *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Lifecycle)

func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Lifecycle) { l.log = logger }
}

func NewLifecycle(store Store, cfg *config.Config, submitter Submitter, publisher Publisher, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		store:     store,
		cfg:       cfg,
		submitter: submitter,
		publisher: publisher,
		log:       zap.NewNop(),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// lock returns the per-template mutex, creating it on first access.
// Entries are never removed; the map is bounded by the template count.
func (l *Lifecycle) lock(templateID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[templateID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[templateID] = m
	}
	return m
}

// Create registers a new draft for a tenant.
func (l *Lifecycle) Create(tenantID, name, language, category, body string) (*models.Template, error) {
	now := l.now()
	t := &models.Template{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		Name:             name,
		Language:         language,
		Category:         category,
		Body:             body,
		State:            string(StateDraft),
		LastTransitionAt: now,
	}
	if err := l.store.Create(t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// Get returns a tenant's template. Templates of other tenants are
// indistinguishable from missing ones.
func (l *Lifecycle) Get(tenantID, templateID string) (*models.Template, error) {
	t, err := l.store.Get(templateID)
	if err != nil {
		return nil, err
	}
	if t.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return t, nil
}

func (l *Lifecycle) List(tenantID string) ([]models.Template, error) {
	return l.store.ListByTenant(tenantID)
}

// Submit moves a draft to PENDING by handing it to the upstream reviewer.
// With the provider unconfigured this fails fast and the state stays DRAFT.
func (l *Lifecycle) Submit(ctx context.Context, tenantID, templateID string) (*models.Template, error) {
	if !l.cfg.IsEnabled() {
		return nil, ErrServiceUnavailable
	}

	m := l.lock(templateID)
	m.Lock()
	defer m.Unlock()

	t, err := l.Get(tenantID, templateID)
	if err != nil {
		return nil, err
	}
	if !canTransition(State(t.State), StatePending) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, StatePending)
	}

	upstreamName, err := l.submitter.SubmitTemplate(ctx, t.Name, t.Language, t.Category, t.Body)
	if err != nil {
		return nil, err
	}

	now := l.now()
	t.State = string(StatePending)
	t.UpstreamName = upstreamName
	t.RejectionReason = ""
	t.SubmittedAt = &now
	t.LastTransitionAt = now
	if err := l.store.Update(t); err != nil {
		return nil, fmt.Errorf("persist submission: %w", err)
	}

	l.publish(t)
	return t, nil
}

// ApplyDecision applies an upstream review decision, matched by the
// upstream-assigned name within the owning tenant. Tenants may reuse
// template names, so the lookup is always tenant-scoped. Replays of an
// already-applied decision are no-ops; decisions that disagree with a
// settled state are conflicts.
func (l *Lifecycle) ApplyDecision(tenantID, upstreamName string, decision State, detail string) error {
	t, err := l.store.GetByUpstreamName(tenantID, upstreamName)
	if err != nil {
		return err
	}

	m := l.lock(t.ID)
	m.Lock()
	defer m.Unlock()

	// Reload under the lock; a concurrent delivery may have won.
	t, err = l.store.Get(t.ID)
	if err != nil {
		return err
	}

	if State(t.State) == decision {
		l.log.Debug("duplicate template decision ignored",
			zap.String("template_id", t.ID),
			zap.String("state", t.State))
		return nil
	}
	if !canTransition(State(t.State), decision) {
		return fmt.Errorf("%w: %s while %s", ErrConflict, decision, t.State)
	}

	t.State = string(decision)
	t.LastTransitionAt = l.now()
	switch decision {
	case StateApproved:
		t.UpstreamName = upstreamName
		t.RejectionReason = ""
	case StateRejected:
		t.RejectionReason = detail
	}
	if err := l.store.Update(t); err != nil {
		return fmt.Errorf("persist decision: %w", err)
	}

	l.publish(t)
	return nil
}

// Pause suspends an approved template.
func (l *Lifecycle) Pause(tenantID, templateID string) (*models.Template, error) {
	return l.adminTransition(tenantID, templateID, StatePaused)
}

// Resume re-activates a paused template.
func (l *Lifecycle) Resume(tenantID, templateID string) (*models.Template, error) {
	return l.adminTransition(tenantID, templateID, StateApproved)
}

// Disable retires a template permanently. There is no way back; a new
// template must be created instead.
func (l *Lifecycle) Disable(tenantID, templateID string) (*models.Template, error) {
	return l.adminTransition(tenantID, templateID, StateDisabled)
}

func (l *Lifecycle) adminTransition(tenantID, templateID string, to State) (*models.Template, error) {
	m := l.lock(templateID)
	m.Lock()
	defer m.Unlock()

	t, err := l.Get(tenantID, templateID)
	if err != nil {
		return nil, err
	}
	if !canTransition(State(t.State), to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, to)
	}

	t.State = string(to)
	t.LastTransitionAt = l.now()
	if err := l.store.Update(t); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}

	l.publish(t)
	return t, nil
}

// publish pushes the committed transition to subscribers. Emission rides
// on the mutation and is never retried on its own; the pollable snapshot
// guarantees eventual observability either way.
func (l *Lifecycle) publish(t *models.Template) {
	if l.publisher == nil {
		return
	}
	l.publisher.PublishTemplate(t.TenantID, t.ID, State(t.State), t.RejectionReason, t.LastTransitionAt)
}
