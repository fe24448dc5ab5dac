package buyers

import (
	"context"

	"gorm.io/gorm"

	"github.com/crsmanager/crs-backend/pkg/db/models"
)

// Repository persists buyer rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the buyer and fills in its store-assigned id.
func (r *Repository) Create(ctx context.Context, buyer *models.Buyer) error {
	return r.db.WithContext(ctx).Create(buyer).Error
}

// Update overwrites every mutable column of the buyer with the given id. It
// returns gorm.ErrRecordNotFound when no row matched.
func (r *Repository) Update(ctx context.Context, buyer *models.Buyer) error {
	res := r.db.WithContext(ctx).
		Model(&models.Buyer{}).
		Where("id = ?", buyer.ID).
		Updates(map[string]any{
			"name":    buyer.Name,
			"address": buyer.Address,
			"state":   buyer.State,
			"gst":     buyer.GST,
			"alias":   buyer.Alias,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the buyer row. It returns gorm.ErrRecordNotFound when no row
// matched.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Buyer{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindByID loads a single buyer row.
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Buyer, error) {
	var buyer models.Buyer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&buyer).Error; err != nil {
		return nil, err
	}
	return &buyer, nil
}
