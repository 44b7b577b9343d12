package quota

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-hub/internal/models"
)

// GormStore persists quota windows through GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Load(tenantID string) ([]Window, error) {
	var rows []models.QuotaWindow
	if err := s.db.Where("tenant_id = ?", tenantID).Find(&rows).Error; err != nil {
		return nil, err
	}
	windows := make([]Window, 0, len(rows))
	for _, r := range rows {
		windows = append(windows, Window{
			Kind:  Kind(r.Kind),
			Count: r.Count,
			Start: r.WindowStart,
		})
	}
	return windows, nil
}

func (s *GormStore) Save(tenantID string, w Window) error {
	row := models.QuotaWindow{
		TenantID:    tenantID,
		Kind:        string(w.Kind),
		Count:       w.Count,
		WindowStart: w.Start,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"count", "window_start", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) Reset(tenantID string) error {
	return s.db.Model(&models.QuotaWindow{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]interface{}{"count": 0, "window_start": time.Now().UTC()}).Error
}
