// Package buyers implements buyer reads (served from the cache) and writes
// (committed to the store, then patched into the cache).
package buyers

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/crsmanager/crs-backend/internal/cache"
	"github.com/crsmanager/crs-backend/pkg/db"
	"github.com/crsmanager/crs-backend/pkg/db/models"
	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
	"github.com/crsmanager/crs-backend/pkg/logger"
)

// Service exposes buyer operations.
type Service interface {
	List(ctx context.Context, query string) []cache.Buyer
	Get(ctx context.Context, id int64) (cache.Buyer, error)
	Create(ctx context.Context, input BuyerInput) (cache.Buyer, error)
	Update(ctx context.Context, id int64, input BuyerInput) (cache.Buyer, error)
	Delete(ctx context.Context, id int64) error
}

// BuyerInput carries every mutable buyer field. Updates replace all of them.
type BuyerInput struct {
	Name    string
	Address string
	State   string
	GST     *string
	Alias   *string
}

type store interface {
	Create(ctx context.Context, buyer *models.Buyer) error
	Update(ctx context.Context, buyer *models.Buyer) error
	Delete(ctx context.Context, id int64) error
}

type service struct {
	repo  store
	cache *cache.Cache
	logg  *logger.Logger
}

// NewService constructs a buyer service instance.
func NewService(repo store, c *cache.Cache, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("buyer repository required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, cache: c, logg: logg}, nil
}

func (s *service) List(_ context.Context, query string) []cache.Buyer {
	return s.cache.SearchBuyers(query)
}

func (s *service) Get(_ context.Context, id int64) (cache.Buyer, error) {
	return s.cache.FindBuyerByID(id)
}

func (s *service) Create(ctx context.Context, input BuyerInput) (cache.Buyer, error) {
	row, err := normalize(input)
	if err != nil {
		return cache.Buyer{}, err
	}

	var created cache.Buyer
	err = s.cache.WithWriteLock(func() error {
		if err := s.repo.Create(ctx, row); err != nil {
			return translateStoreError(err, "create buyer")
		}
		created = cache.BuyerFromModel(*row)
		if err := s.cache.InsertBuyer(created); err != nil {
			return s.cacheDiverged(ctx, err, row.ID)
		}
		return nil
	})
	if err != nil {
		return cache.Buyer{}, err
	}
	return created, nil
}

func (s *service) Update(ctx context.Context, id int64, input BuyerInput) (cache.Buyer, error) {
	row, err := normalize(input)
	if err != nil {
		return cache.Buyer{}, err
	}
	row.ID = id

	var updated cache.Buyer
	err = s.cache.WithWriteLock(func() error {
		current, err := s.cache.FindBuyerByID(id)
		if err != nil {
			return err
		}
		if err := s.repo.Update(ctx, row); err != nil {
			return translateStoreError(err, "update buyer")
		}
		updated = cache.BuyerFromModel(*row)
		if err := s.cache.RekeyBuyer(current.Name, updated.Name, updated); err != nil {
			return s.cacheDiverged(ctx, err, id)
		}
		return nil
	})
	if err != nil {
		return cache.Buyer{}, err
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, id int64) error {
	return s.cache.WithWriteLock(func() error {
		current, err := s.cache.FindBuyerByID(id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return translateStoreError(err, "delete buyer")
		}
		if err := s.cache.RemoveBuyer(current.Name); err != nil {
			return s.cacheDiverged(ctx, err, id)
		}
		return nil
	})
}

// cacheDiverged reports a cache patch that failed after the store committed.
// The cache stays stale until the next reload.
func (s *service) cacheDiverged(ctx context.Context, err error, buyerID int64) error {
	ctx = s.logg.WithBuyerID(ctx, buyerID)
	s.logg.Error(ctx, "buyer cache patch failed after commit; reload required", err)
	return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "cache out of sync with store")
}

func normalize(input BuyerInput) (*models.Buyer, error) {
	upper := cases.Upper(language.Und)
	row := &models.Buyer{
		Name:    strings.TrimSpace(input.Name),
		Address: strings.TrimSpace(input.Address),
		State:   upper.String(strings.TrimSpace(input.State)),
		GST:     optional(input.GST),
		Alias:   optional(input.Alias),
	}
	if row.GST != nil {
		gst := upper.String(*row.GST)
		row.GST = &gst
	}

	switch {
	case row.Name == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case row.Address == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	case row.State == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "state is required")
	}
	return row, nil
}

// optional trims the value and treats blank as absent, so blank aliases do
// not collide on the unique index.
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

func translateStoreError(err error, action string) error {
	switch {
	case db.IsNotFound(err):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "buyer not found")
	case db.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "buyer name or alias already exists")
	case db.IsForeignKeyViolation(err):
		return pkgerrors.Wrap(pkgerrors.CodeForeignKey, err, "buyer is referenced by existing challans")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: "+action)
	}
}
