package cache

import (
	"context"

	"gorm.io/gorm"

	"github.com/crsmanager/crs-backend/pkg/db"
)

const challanRowsQuery = `
SELECT
  c.id AS challan_id, c.number, c.session, c.buyer_id, c.delivered_by, c.vehicle_number,
  c.value, c.notes, c.received, c.cancelled, c.digitally_signed, c.created_at,
  b.name AS buyer_name, b.address AS buyer_address, b.state AS buyer_state,
  b.gst AS buyer_gst, b.alias AS buyer_alias,
  p.id AS product_id, p.description, p.quantity, p.comment, p.serial_number
FROM challans c
LEFT JOIN buyers b ON b.id = c.buyer_id
LEFT JOIN challan_products p ON p.challan_id = c.id
ORDER BY c.id DESC, p.id ASC`

// GormSource reads snapshots from the relational store.
type GormSource struct {
	db *db.Client
}

// NewGormSource binds a Source to the database client.
func NewGormSource(client *db.Client) *GormSource {
	return &GormSource{db: client}
}

// Snapshot runs both queries inside one read-only transaction.
func (s *GormSource) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.db.WithReadTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Order("id ASC").Find(&snap.Buyers).Error; err != nil {
			return err
		}
		return tx.Raw(challanRowsQuery).Scan(&snap.Rows).Error
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

var _ Source = (*GormSource)(nil)
