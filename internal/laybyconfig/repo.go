package laybyconfig

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
)

// Repository looks up layby policy rows.
type Repository interface {
	// FindForLocation returns the most specific config row for the pair:
	// the location row when present, otherwise the business-wide row,
	// otherwise nil.
	FindForLocation(ctx context.Context, businessID uuid.UUID, locationID uuid.UUID) (*models.LaybyConfig, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a config repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindForLocation(ctx context.Context, businessID uuid.UUID, locationID uuid.UUID) (*models.LaybyConfig, error) {
	if locationID != uuid.Nil {
		var row models.LaybyConfig
		err := r.db.WithContext(ctx).
			Where("business_id = ? AND location_id = ?", businessID, locationID).
			First(&row).Error
		if err == nil {
			return &row, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var row models.LaybyConfig
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND location_id IS NULL", businessID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
