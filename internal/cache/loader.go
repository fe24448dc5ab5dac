package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crsmanager/crs-backend/pkg/db/models"
	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
)

// ChallanRow is one row of the challan/product/buyer join. Product and buyer
// columns are nullable because the join is outer; a row missing either side
// means the store is inconsistent.
type ChallanRow struct {
	ChallanID       int64           `gorm:"column:challan_id"`
	Number          int             `gorm:"column:number"`
	Session         string          `gorm:"column:session"`
	BuyerID         int64           `gorm:"column:buyer_id"`
	DeliveredBy     string          `gorm:"column:delivered_by"`
	VehicleNumber   string          `gorm:"column:vehicle_number"`
	Value           decimal.Decimal `gorm:"column:value"`
	Notes           *string         `gorm:"column:notes"`
	Received        bool            `gorm:"column:received"`
	Cancelled       bool            `gorm:"column:cancelled"`
	DigitallySigned bool            `gorm:"column:digitally_signed"`
	CreatedAt       time.Time       `gorm:"column:created_at"`

	BuyerName    *string `gorm:"column:buyer_name"`
	BuyerAddress *string `gorm:"column:buyer_address"`
	BuyerState   *string `gorm:"column:buyer_state"`
	BuyerGST     *string `gorm:"column:buyer_gst"`
	BuyerAlias   *string `gorm:"column:buyer_alias"`

	ProductID    *int64  `gorm:"column:product_id"`
	Description  *string `gorm:"column:description"`
	Quantity     *int    `gorm:"column:quantity"`
	Comment      *string `gorm:"column:comment"`
	SerialNumber *string `gorm:"column:serial_number"`
}

// Snapshot is everything a load needs, read from one consistent view of the
// store. Rows are grouped by challan, challans in list order and products in
// insertion order.
type Snapshot struct {
	Buyers []models.Buyer
	Rows   []ChallanRow
}

// Source reads a Snapshot from the store.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Load replaces the cache contents with a fresh read of src. The new index is
// built completely before it is installed; on any error the cache keeps its
// previous contents. Load holds the writer lock, so it must not be called from
// inside WithWriteLock.
func (c *Cache) Load(ctx context.Context, src Source) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	start := time.Now()
	idx, err := c.build(ctx, src)
	took := time.Since(start)
	c.metrics.ObserveReload(took, err)
	if err != nil {
		if c.logg != nil {
			c.logg.Error(ctx, "cache load failed", err)
		}
		return err
	}

	c.swap(idx, took)
	if c.logg != nil {
		ctx = c.logg.WithFields(ctx, map[string]any{
			"buyers":      len(idx.buyers),
			"challans":    len(idx.challans),
			"duration_ms": took.Milliseconds(),
		})
		c.logg.Info(ctx, "cache loaded")
	}
	return nil
}

// Reload runs Load bounded by timeout. A timeout of zero or less means the
// load is bounded only by ctx.
func (c *Cache) Reload(ctx context.Context, src Source, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.Load(ctx, src)
}

func (c *Cache) build(ctx context.Context, src Source) (*index, error) {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read cache snapshot")
	}
	return buildIndex(snap)
}

func buildIndex(snap Snapshot) (*index, error) {
	idx := newIndex(len(snap.Buyers), 0)
	for _, m := range snap.Buyers {
		if _, dup := idx.buyers[m.Name]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("duplicate buyer name %q", m.Name))
		}
		b := BuyerFromModel(m)
		idx.buyers[b.Name] = b
		idx.buyerNames[b.ID] = b.Name
	}

	var current *Challan
	flush := func() {
		if current == nil {
			return
		}
		idx.challanPos[current.ID] = len(idx.challans)
		idx.challans = append(idx.challans, *current)
		current = nil
	}

	for _, row := range snap.Rows {
		if current == nil || current.ID != row.ChallanID {
			flush()
			if _, seen := idx.challanPos[row.ChallanID]; seen {
				return nil, integrity("rows for challan %d are not contiguous", row.ChallanID)
			}
			if row.BuyerName == nil {
				return nil, integrity("challan %d references missing buyer %d", row.ChallanID, row.BuyerID)
			}
			ch := challanFromRow(row)
			current = &ch
		}
		if row.ProductID == nil {
			return nil, integrity("challan %d has no products", row.ChallanID)
		}
		current.Products = append(current.Products, productFromRow(row))
	}
	flush()

	return idx, nil
}

func challanFromRow(row ChallanRow) Challan {
	return Challan{
		ID:      row.ChallanID,
		Number:  row.Number,
		Session: row.Session,
		Buyer: Buyer{
			ID:      row.BuyerID,
			Name:    deref(row.BuyerName),
			Address: deref(row.BuyerAddress),
			State:   deref(row.BuyerState),
			GST:     row.BuyerGST,
			Alias:   row.BuyerAlias,
		},
		DeliveredBy:     row.DeliveredBy,
		VehicleNumber:   row.VehicleNumber,
		Value:           row.Value,
		Notes:           row.Notes,
		Received:        row.Received,
		Cancelled:       row.Cancelled,
		DigitallySigned: row.DigitallySigned,
		CreatedAt:       row.CreatedAt,
	}
}

func productFromRow(row ChallanRow) Product {
	p := Product{
		Description:  deref(row.Description),
		Comment:      row.Comment,
		SerialNumber: row.SerialNumber,
	}
	if row.Quantity != nil {
		p.Quantity = *row.Quantity
	}
	return p
}

func integrity(format string, args ...any) error {
	return pkgerrors.New(pkgerrors.CodeIntegrity, fmt.Sprintf(format, args...))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
