package gateway

import (
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"whatsapp-hub/internal/models"
)

// MessageLog records outbound sends and inbound delivery status updates.
// It doubles as the delivery sink the webhook router dispatches to.
type MessageLog struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewMessageLog(db *gorm.DB, logger *zap.Logger) *MessageLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageLog{db: db, log: logger}
}

func (m *MessageLog) RecordOutbound(tenantID, upstreamID, recipient, templateID, idempotencyKey string) {
	row := models.Message{
		TenantID:       tenantID,
		UpstreamID:     upstreamID,
		Recipient:      recipient,
		TemplateID:     templateID,
		IdempotencyKey: idempotencyKey,
		Status:         "sent",
	}
	if err := m.db.Create(&row).Error; err != nil {
		m.log.Warn("outbound message not logged",
			zap.String("tenant_id", tenantID),
			zap.String("upstream_id", upstreamID),
			zap.Error(err))
	}
}

// RecordStatus applies a delivery status update routed in by webhook.
// Unknown message ids are recorded as bare rows so a status arriving
// before the outbound log entry is not lost.
func (m *MessageLog) RecordStatus(tenantID, messageID, status string) {
	var row models.Message
	err := m.db.Where("tenant_id = ? AND upstream_id = ?", tenantID, messageID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.Message{TenantID: tenantID, UpstreamID: messageID, Status: status}
		if err := m.db.Create(&row).Error; err != nil {
			m.log.Warn("delivery status not recorded", zap.String("upstream_id", messageID), zap.Error(err))
		}
		return
	}
	if err != nil {
		m.log.Warn("delivery status lookup failed", zap.String("upstream_id", messageID), zap.Error(err))
		return
	}

	row.Status = status
	if err := m.db.Save(&row).Error; err != nil {
		m.log.Warn("delivery status not updated", zap.String("upstream_id", messageID), zap.Error(err))
	}
}

func (m *MessageLog) ListByTenant(tenantID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.Message
	if err := m.db.Where("tenant_id = ?", tenantID).Order("created_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
