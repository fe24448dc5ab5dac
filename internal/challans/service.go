// Package challans implements challan reads (served from the cache) and
// writes (committed to the store in one transaction, then patched into the
// cache).
package challans

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/crsmanager/crs-backend/internal/cache"
	"github.com/crsmanager/crs-backend/pkg/db"
	"github.com/crsmanager/crs-backend/pkg/db/models"
	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
	"github.com/crsmanager/crs-backend/pkg/logger"
	"github.com/crsmanager/crs-backend/pkg/types"
)

// Service exposes challan operations.
type Service interface {
	List(ctx context.Context, filter ListFilter) []cache.Challan
	Get(ctx context.Context, id int64) (cache.Challan, error)
	Create(ctx context.Context, input CreateChallanInput) (cache.Challan, error)
	Update(ctx context.Context, id int64, patch ChallanPatch) (cache.Challan, error)
	NewChallanInfo(ctx context.Context) (NewChallanInfo, error)
}

// ProductInput is one line item supplied by the caller.
type ProductInput struct {
	Description  string
	Quantity     int
	Comment      *string
	SerialNumber *string
}

// CreateChallanInput holds the validated payload to create a challan. A zero
// Number or empty Session is filled from NewChallanInfo.
type CreateChallanInput struct {
	Number          int
	Session         string
	BuyerID         int64
	DeliveredBy     string
	VehicleNumber   string
	Value           decimal.Decimal
	Notes           *string
	Received        bool
	Cancelled       bool
	DigitallySigned bool
	Products        []ProductInput
}

// ChallanPatch lists the fields a caller supplied. Unset fields keep their
// current value; a supplied Products list replaces every product.
type ChallanPatch struct {
	Number          types.Field[int]
	Session         types.Field[string]
	BuyerID         types.Field[int64]
	DeliveredBy     types.Field[string]
	VehicleNumber   types.Field[string]
	Value           types.Field[decimal.Decimal]
	Notes           types.Field[*string]
	Received        types.Field[bool]
	Cancelled       types.Field[bool]
	DigitallySigned types.Field[bool]
	Products        types.Field[[]ProductInput]
}

// IsEmpty reports whether no field was supplied.
func (p ChallanPatch) IsEmpty() bool {
	return !p.Number.Set && !p.Session.Set && !p.BuyerID.Set && !p.DeliveredBy.Set &&
		!p.VehicleNumber.Set && !p.Value.Set && !p.Notes.Set && !p.Received.Set &&
		!p.Cancelled.Set && !p.DigitallySigned.Set && !p.Products.Set
}

// ListFilter narrows List. Nil fields do not filter.
type ListFilter struct {
	BuyerID   *int64
	Session   *string
	Received  *bool
	Cancelled *bool
}

// NewChallanInfo suggests the session and number for the next challan.
type NewChallanInfo struct {
	Session string `json:"session"`
	Number  int    `json:"number"`
}

type service struct {
	repo     *Repository
	dbClient *db.Client
	cache    *cache.Cache
	logg     *logger.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewService constructs a challan service. Sessions are computed from the
// wall clock observed in loc.
func NewService(repo *Repository, dbClient *db.Client, c *cache.Cache, logg *logger.Logger, loc *time.Location) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("challan repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		repo:     repo,
		dbClient: dbClient,
		cache:    c,
		logg:     logg,
		loc:      loc,
		now:      time.Now,
	}, nil
}

func (s *service) List(_ context.Context, filter ListFilter) []cache.Challan {
	all := s.cache.ListChallans()
	out := all[:0]
	for _, ch := range all {
		if filter.matches(ch) {
			out = append(out, ch)
		}
	}
	return out
}

func (f ListFilter) matches(ch cache.Challan) bool {
	if f.BuyerID != nil && ch.Buyer.ID != *f.BuyerID {
		return false
	}
	if f.Session != nil && ch.Session != *f.Session {
		return false
	}
	if f.Received != nil && ch.Received != *f.Received {
		return false
	}
	if f.Cancelled != nil && ch.Cancelled != *f.Cancelled {
		return false
	}
	return true
}

func (s *service) Get(_ context.Context, id int64) (cache.Challan, error) {
	return s.cache.FindChallanByID(id)
}

func (s *service) NewChallanInfo(ctx context.Context) (NewChallanInfo, error) {
	session := SessionFor(s.now(), s.loc)
	next, err := s.repo.NextNumber(ctx, session)
	if err != nil {
		return NewChallanInfo{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: next challan number")
	}
	return NewChallanInfo{Session: session, Number: next}, nil
}

func (s *service) Create(ctx context.Context, input CreateChallanInput) (cache.Challan, error) {
	if err := validateProducts(input.Products); err != nil {
		return cache.Challan{}, err
	}
	row := &models.Challan{
		Number:          input.Number,
		Session:         strings.TrimSpace(input.Session),
		BuyerID:         input.BuyerID,
		DeliveredBy:     strings.TrimSpace(input.DeliveredBy),
		VehicleNumber:   normalizeVehicle(input.VehicleNumber),
		Value:           input.Value.Round(2),
		Notes:           optional(input.Notes),
		Received:        input.Received,
		Cancelled:       input.Cancelled,
		DigitallySigned: input.DigitallySigned,
	}
	if err := validateColumns(row); err != nil {
		return cache.Challan{}, err
	}

	var created cache.Challan
	err := s.cache.WithWriteLock(func() error {
		buyer, err := s.cache.FindBuyerByID(input.BuyerID)
		if err != nil {
			return err
		}

		products := productRows(input.Products)
		err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
			txRepo := s.repo.WithTx(tx)
			if row.Session == "" {
				row.Session = SessionFor(s.now(), s.loc)
			}
			if row.Number == 0 {
				next, err := txRepo.NextNumber(ctx, row.Session)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: next challan number")
				}
				row.Number = next
			}
			if err := txRepo.CreateChallan(ctx, row); err != nil {
				return translateStoreError(err, "insert challan")
			}
			for i := range products {
				products[i].ChallanID = row.ID
			}
			if err := txRepo.CreateProducts(ctx, products); err != nil {
				return translateStoreError(err, "insert challan products")
			}
			return nil
		})
		if err != nil {
			return err
		}

		created = cache.ChallanFromModel(*row, buyer, products)
		if err := s.cache.InsertChallan(created, cache.Front); err != nil {
			return s.cacheDiverged(ctx, err, row.ID)
		}
		return nil
	})
	if err != nil {
		return cache.Challan{}, err
	}

	ctx = s.logg.WithChallanID(ctx, created.ID)
	s.logg.Info(ctx, "challan created")
	return created, nil
}

func (s *service) Update(ctx context.Context, id int64, patch ChallanPatch) (cache.Challan, error) {
	var updated cache.Challan
	err := s.cache.WithWriteLock(func() error {
		current, err := s.cache.FindChallanByID(id)
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			return pkgerrors.New(pkgerrors.CodeValidation, "no fields supplied")
		}
		if patch.Products.Set {
			if err := validateProducts(patch.Products.Value); err != nil {
				return err
			}
		}

		buyer := current.Buyer
		if patch.BuyerID.Set && patch.BuyerID.Value != current.Buyer.ID {
			buyer, err = s.cache.FindBuyerByID(patch.BuyerID.Value)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					return pkgerrors.Wrap(pkgerrors.CodeForeignKey, err, fmt.Sprintf("buyer %d does not exist", patch.BuyerID.Value))
				}
				return err
			}
		}

		merged := mergeColumns(current, patch)
		merged.Buyer = buyer
		if err := validateColumns(cacheToRow(merged)); err != nil {
			return err
		}

		var products []models.Product
		if patch.Products.Set {
			products = productRows(patch.Products.Value)
		}
		columns := changedColumns(merged, patch)

		err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
			txRepo := s.repo.WithTx(tx)
			if err := txRepo.UpdateColumns(ctx, id, columns); err != nil {
				return translateStoreError(err, "update challan")
			}
			if patch.Products.Set {
				if err := txRepo.ReplaceProducts(ctx, id, products); err != nil {
					return translateStoreError(err, "replace challan products")
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		if patch.Products.Set {
			merged.Products = make([]cache.Product, 0, len(products))
			for _, p := range products {
				merged.Products = append(merged.Products, cache.ProductFromModel(p))
			}
		}
		if err := s.cache.ReplaceChallan(id, merged); err != nil {
			return s.cacheDiverged(ctx, err, id)
		}
		updated = merged
		return nil
	})
	if err != nil {
		return cache.Challan{}, err
	}
	return updated, nil
}

// mergeColumns applies the supplied scalar fields to a copy of current.
func mergeColumns(current cache.Challan, patch ChallanPatch) cache.Challan {
	merged := current
	patch.Number.ApplyTo(&merged.Number)
	if patch.Session.Set {
		merged.Session = strings.TrimSpace(patch.Session.Value)
	}
	if patch.DeliveredBy.Set {
		merged.DeliveredBy = strings.TrimSpace(patch.DeliveredBy.Value)
	}
	if patch.VehicleNumber.Set {
		merged.VehicleNumber = normalizeVehicle(patch.VehicleNumber.Value)
	}
	if patch.Value.Set {
		merged.Value = patch.Value.Value.Round(2)
	}
	if patch.Notes.Set {
		merged.Notes = optional(patch.Notes.Value)
	}
	patch.Received.ApplyTo(&merged.Received)
	patch.Cancelled.ApplyTo(&merged.Cancelled)
	patch.DigitallySigned.ApplyTo(&merged.DigitallySigned)
	return merged
}

// changedColumns maps the supplied scalar fields to their merged values.
func changedColumns(merged cache.Challan, patch ChallanPatch) map[string]any {
	columns := make(map[string]any)
	if patch.Number.Set {
		columns["number"] = merged.Number
	}
	if patch.Session.Set {
		columns["session"] = merged.Session
	}
	if patch.BuyerID.Set {
		columns["buyer_id"] = merged.Buyer.ID
	}
	if patch.DeliveredBy.Set {
		columns["delivered_by"] = merged.DeliveredBy
	}
	if patch.VehicleNumber.Set {
		columns["vehicle_number"] = merged.VehicleNumber
	}
	if patch.Value.Set {
		columns["value"] = merged.Value
	}
	if patch.Notes.Set {
		columns["notes"] = merged.Notes
	}
	if patch.Received.Set {
		columns["received"] = merged.Received
	}
	if patch.Cancelled.Set {
		columns["cancelled"] = merged.Cancelled
	}
	if patch.DigitallySigned.Set {
		columns["digitally_signed"] = merged.DigitallySigned
	}
	return columns
}

func cacheToRow(ch cache.Challan) *models.Challan {
	return &models.Challan{
		ID:            ch.ID,
		Number:        ch.Number,
		Session:       ch.Session,
		BuyerID:       ch.Buyer.ID,
		DeliveredBy:   ch.DeliveredBy,
		VehicleNumber: ch.VehicleNumber,
		Value:         ch.Value,
	}
}

func validateColumns(row *models.Challan) error {
	switch {
	case row.Number < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "number must be positive")
	case row.ID != 0 && row.Number == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "number must be positive")
	case row.Session != "" && !ValidSession(row.Session):
		return pkgerrors.New(pkgerrors.CodeValidation, "session must look like 2024-2025")
	case row.ID != 0 && row.Session == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "session is required")
	case row.DeliveredBy == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "delivered_by is required")
	case row.VehicleNumber == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "vehicle_number is required")
	case row.Value.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "value cannot be negative")
	}
	return nil
}

func validateProducts(products []ProductInput) error {
	if len(products) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "challan must contain at least one product")
	}
	for i, p := range products {
		if strings.TrimSpace(p.Description) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("products[%d].description is required", i))
		}
		if p.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("products[%d].quantity must be positive", i))
		}
	}
	return nil
}

func productRows(inputs []ProductInput) []models.Product {
	rows := make([]models.Product, 0, len(inputs))
	for _, p := range inputs {
		rows = append(rows, models.Product{
			Description:  strings.TrimSpace(p.Description),
			Quantity:     p.Quantity,
			Comment:      optional(p.Comment),
			SerialNumber: optional(p.SerialNumber),
		})
	}
	return rows
}

func normalizeVehicle(v string) string {
	return strings.ToUpper(strings.Join(strings.Fields(v), ""))
}

func optional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (s *service) cacheDiverged(ctx context.Context, err error, challanID int64) error {
	ctx = s.logg.WithChallanID(ctx, challanID)
	s.logg.Error(ctx, "challan cache patch failed after commit; reload required", err)
	return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "cache out of sync with store")
}

func translateStoreError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case db.IsNotFound(err):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "challan not found")
	case db.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "challan number already used in this session")
	case db.IsForeignKeyViolation(err):
		return pkgerrors.Wrap(pkgerrors.CodeForeignKey, err, "referenced buyer does not exist")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: "+action)
	}
}
