package models

import (
	"time"
)

// Tenant represents an isolated workspace sharing the parent WhatsApp
// Business account. The phone number id is the webhook routing key and is
// owned by at most one tenant.
type Tenant struct {
	ID                string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name              string    `gorm:"type:varchar(255);not null" json:"name"`
	PhoneNumberID     string    `gorm:"type:varchar(64);uniqueIndex" json:"phone_number_id"`
	Enabled           bool      `gorm:"default:true" json:"enabled"`
	PlanName          string    `gorm:"type:varchar(100)" json:"plan_name"`
	MessagesPerSecond int64     `gorm:"default:-1" json:"messages_per_second"`
	MessagesPerDay    int64     `gorm:"default:-1" json:"messages_per_day"`
	MessagesPerMonth  int64     `gorm:"default:-1" json:"messages_per_month"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// Template represents a message template owned by a tenant, tracked through
// the external approval lifecycle.
type Template struct {
	ID               string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID         string     `gorm:"type:varchar(64);index;index:idx_tenant_upstream,priority:1;not null" json:"tenant_id"`
	Name             string     `gorm:"type:varchar(255);not null" json:"name"`
	Language         string     `gorm:"type:varchar(50)" json:"language"`
	Category         string     `gorm:"type:varchar(100)" json:"category"`
	Body             string     `gorm:"type:text" json:"body"`
	State            string     `gorm:"type:varchar(20);default:'DRAFT'" json:"state"`
	UpstreamName     string     `gorm:"type:varchar(255);index:idx_tenant_upstream,priority:2" json:"upstream_name"`
	RejectionReason  string     `gorm:"type:text" json:"rejection_reason"`
	SubmittedAt      *time.Time `json:"submitted_at"`
	LastTransitionAt time.Time  `json:"last_transition_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}

// QuotaWindow persists one rolling usage counter for a (tenant, kind) pair.
type QuotaWindow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    string    `gorm:"type:varchar(64);uniqueIndex:idx_tenant_kind;not null" json:"tenant_id"`
	Kind        string    `gorm:"type:varchar(10);uniqueIndex:idx_tenant_kind;not null" json:"kind"`
	Count       int64     `gorm:"default:0" json:"count"`
	WindowStart time.Time `json:"window_start"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (QuotaWindow) TableName() string {
	return "quota_windows"
}

// Message logs an outbound send or an inbound delivery status update.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       string    `gorm:"type:varchar(64);index" json:"tenant_id"`
	UpstreamID     string    `gorm:"type:varchar(255);index" json:"upstream_id"`
	Recipient      string    `gorm:"type:varchar(50)" json:"recipient"`
	TemplateID     string    `gorm:"type:varchar(64)" json:"template_id"`
	IdempotencyKey string    `gorm:"type:varchar(64);index" json:"idempotency_key"`
	Status         string    `gorm:"type:varchar(20)" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}
