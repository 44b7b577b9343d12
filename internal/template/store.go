package template

import (
	"errors"

	"gorm.io/gorm"

	"whatsapp-hub/internal/models"
)

// GormStore persists templates through GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(id string) (*models.Template, error) {
	var t models.Template
	if err := s.db.Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *GormStore) GetByUpstreamName(tenantID, name string) (*models.Template, error) {
	var t models.Template
	if err := s.db.Where("tenant_id = ? AND upstream_name = ?", tenantID, name).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *GormStore) ListByTenant(tenantID string) ([]models.Template, error) {
	var ts []models.Template
	if err := s.db.Where("tenant_id = ?", tenantID).Order("created_at desc").Find(&ts).Error; err != nil {
		return nil, err
	}
	return ts, nil
}

func (s *GormStore) Create(t *models.Template) error {
	return s.db.Create(t).Error
}

func (s *GormStore) Update(t *models.Template) error {
	return s.db.Save(t).Error
}
