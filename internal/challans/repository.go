package challans

import (
	"context"

	"gorm.io/gorm"

	"github.com/crsmanager/crs-backend/pkg/db/models"
)

// Repository persists challans and their products.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// CreateChallan inserts the challan row and fills in its id and created_at.
func (r *Repository) CreateChallan(ctx context.Context, challan *models.Challan) error {
	return r.db.WithContext(ctx).Create(challan).Error
}

// CreateProducts bulk-inserts product rows in slice order.
func (r *Repository) CreateProducts(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&products).Error
}

// ReplaceProducts deletes every product of the challan and inserts products.
func (r *Repository) ReplaceProducts(ctx context.Context, challanID int64, products []models.Product) error {
	if err := r.db.WithContext(ctx).Where("challan_id = ?", challanID).Delete(&models.Product{}).Error; err != nil {
		return err
	}
	for i := range products {
		products[i].ChallanID = challanID
	}
	return r.CreateProducts(ctx, products)
}

// UpdateColumns writes the given columns of one challan. It returns
// gorm.ErrRecordNotFound when no row matched.
func (r *Repository) UpdateColumns(ctx context.Context, id int64, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Challan{}).Where("id = ?", id).Updates(columns)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// NextNumber returns one more than the highest number used in session, or 1
// for an empty session. Gaps left by removed numbers are never refilled.
func (r *Repository) NextNumber(ctx context.Context, session string) (int, error) {
	var next int
	err := r.db.WithContext(ctx).
		Model(&models.Challan{}).
		Select("COALESCE(MAX(number), 0) + 1").
		Where("session = ?", session).
		Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

// ListProducts returns the products of a challan in insertion order.
func (r *Repository) ListProducts(ctx context.Context, challanID int64) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).Where("challan_id = ?", challanID).Order("id ASC").Find(&products).Error
	return products, err
}
