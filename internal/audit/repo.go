package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
)

// Repository manages persistence for layby audit rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.LaybyAudit) error
	ListByLaybyID(ctx context.Context, laybyID uuid.UUID) ([]models.LaybyAudit, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, row *models.LaybyAudit) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) ListByLaybyID(ctx context.Context, laybyID uuid.UUID) ([]models.LaybyAudit, error) {
	var rows []models.LaybyAudit
	if err := r.db.WithContext(ctx).
		Where("layby_id = ?", laybyID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
