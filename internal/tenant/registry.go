package tenant

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"whatsapp-hub/internal/models"
	"whatsapp-hub/internal/quota"
)

var (
	ErrNotFound      = errors.New("tenant not found")
	ErrPhoneTaken    = errors.New("phone number id already owned by another tenant")
	ErrPhoneAssigned = errors.New("tenant already has a phone number id assigned")
	ErrNotOnboarded  = errors.New("tenant has no phone number id assigned")
)

// Registry manages tenant records and maintains the phone-number-id index
// used to route inbound webhook events. A phone number id belongs to at
// most one tenant and is assigned exactly once, at onboarding.
type Registry struct {
	db  *gorm.DB
	log *zap.Logger

	mu      sync.RWMutex
	byPhone map[string]string // phone number id -> tenant id
}

func NewRegistry(db *gorm.DB, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		db:      db,
		log:     logger,
		byPhone: make(map[string]string),
	}
}

// Create registers a new tenant with its plan limits. The phone number id
// is assigned later, when provider onboarding completes.
func (r *Registry) Create(name, planName string, limits quota.Limits) (*models.Tenant, error) {
	t := &models.Tenant{
		ID:                uuid.NewString(),
		Name:              name,
		Enabled:           true,
		PlanName:          planName,
		MessagesPerSecond: limits.PerSecond,
		MessagesPerDay:    limits.PerDay,
		MessagesPerMonth:  limits.PerMonth,
	}
	if err := r.db.Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Registry) Get(tenantID string) (*models.Tenant, error) {
	var t models.Tenant
	if err := r.db.Where("id = ?", tenantID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindByPhoneNumberID resolves the owning tenant for an inbound event.
func (r *Registry) FindByPhoneNumberID(phoneNumberID string) (*models.Tenant, error) {
	r.mu.RLock()
	tenantID, ok := r.byPhone[phoneNumberID]
	r.mu.RUnlock()
	if ok {
		return r.Get(tenantID)
	}

	var t models.Tenant
	if err := r.db.Where("phone_number_id = ?", phoneNumberID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	r.mu.Lock()
	r.byPhone[phoneNumberID] = t.ID
	r.mu.Unlock()
	return &t, nil
}

// AssignPhoneNumber completes onboarding by binding a phone number id to a
// tenant. The binding happens once; re-assignment and sharing are refused.
func (r *Registry) AssignPhoneNumber(tenantID, phoneNumberID string) error {
	t, err := r.Get(tenantID)
	if err != nil {
		return err
	}
	if t.PhoneNumberID != "" {
		return ErrPhoneAssigned
	}

	if existing, err := r.FindByPhoneNumberID(phoneNumberID); err == nil && existing.ID != tenantID {
		return ErrPhoneTaken
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	t.PhoneNumberID = phoneNumberID
	if err := r.db.Save(t).Error; err != nil {
		return err
	}

	r.mu.Lock()
	r.byPhone[phoneNumberID] = tenantID
	r.mu.Unlock()

	r.log.Info("phone number assigned",
		zap.String("tenant_id", tenantID),
		zap.String("phone_number_id", phoneNumberID))
	return nil
}

// SetPlan applies a new limit plan. Counters in the current windows are
// kept as-is; the new limits apply to the next check.
func (r *Registry) SetPlan(tenantID, planName string, limits quota.Limits) error {
	t, err := r.Get(tenantID)
	if err != nil {
		return err
	}
	t.PlanName = planName
	t.MessagesPerSecond = limits.PerSecond
	t.MessagesPerDay = limits.PerDay
	t.MessagesPerMonth = limits.PerMonth
	return r.db.Save(t).Error
}

func (r *Registry) SetEnabled(tenantID string, enabled bool) error {
	t, err := r.Get(tenantID)
	if err != nil {
		return err
	}
	t.Enabled = enabled
	return r.db.Save(t).Error
}

// Limits implements quota.LimitsProvider.
func (r *Registry) Limits(tenantID string) (quota.Limits, error) {
	t, err := r.Get(tenantID)
	if err != nil {
		return quota.Limits{}, err
	}
	return quota.Limits{
		PerSecond: t.MessagesPerSecond,
		PerDay:    t.MessagesPerDay,
		PerMonth:  t.MessagesPerMonth,
	}, nil
}
