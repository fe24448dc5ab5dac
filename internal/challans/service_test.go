package challans

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crsmanager/crs-backend/internal/cache"
	"github.com/crsmanager/crs-backend/pkg/db"
	"github.com/crsmanager/crs-backend/pkg/db/dbtest"
	"github.com/crsmanager/crs-backend/pkg/db/models"
	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
	"github.com/crsmanager/crs-backend/pkg/logger"
	"github.com/crsmanager/crs-backend/pkg/types"
)

type fixture struct {
	svc    *service
	cache  *cache.Cache
	client *db.Client
	acme   models.Buyer
	zenith models.Buyer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()

	acme := models.Buyer{Name: "Acme", Address: "12 Market Road", State: "KARNATAKA"}
	zenith := models.Buyer{Name: "Zenith", Address: "4 Port Lane", State: "GOA"}
	require.NoError(t, conn.Create(&acme).Error)
	require.NoError(t, conn.Create(&zenith).Error)

	c := cache.New()
	require.NoError(t, c.Load(context.Background(), cache.NewGormSource(client)))

	svc, err := NewService(NewRepository(conn), client, c, logger.New(logger.Options{Output: io.Discard}), time.UTC)
	require.NoError(t, err)
	impl := svc.(*service)
	impl.now = func() time.Time { return time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC) }

	return fixture{svc: impl, cache: c, client: client, acme: acme, zenith: zenith}
}

func strPtr(s string) *string { return &s }

func baseInput(buyerID int64) CreateChallanInput {
	return CreateChallanInput{
		BuyerID:       buyerID,
		DeliveredBy:   "Ravi",
		VehicleNumber: "ka 01 ab 1234",
		Value:         decimal.RequireFromString("1500.50"),
		Products:      []ProductInput{{Description: "Steel rod", Quantity: 4, SerialNumber: strPtr("SR-1")}},
	}
}

func TestCreateWithOneProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, baseInput(f.acme.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, created.Number)
	assert.Equal(t, "2024-2025", created.Session)
	assert.Equal(t, "KA01AB1234", created.VehicleNumber)
	assert.Equal(t, "Acme", created.Buyer.Name)
	assert.False(t, created.CreatedAt.IsZero())

	cached, err := f.cache.FindChallanByID(created.ID)
	require.NoError(t, err)
	require.Len(t, cached.Products, 1)
	assert.Equal(t, "Steel rod", cached.Products[0].Description)

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Product{}).Where("challan_id = ?", created.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateRejectsEmptyProducts(t *testing.T) {
	f := newFixture(t)
	input := baseInput(f.acme.ID)
	input.Products = nil

	_, err := f.svc.Create(context.Background(), input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, f.cache.ListChallans())

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Challan{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateUnknownBuyerTouchesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), baseInput(999))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Challan{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateInsertsAtFront(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Create(ctx, baseInput(f.acme.ID))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, baseInput(f.zenith.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Number)

	list := f.svc.List(ctx, ListFilter{})
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	reloaded := cache.New()
	require.NoError(t, reloaded.Load(ctx, cache.NewGormSource(f.client)))
	relist := reloaded.ListChallans()
	require.Len(t, relist, 2)
	assert.Equal(t, second.ID, relist[0].ID)
	assert.Equal(t, first.ID, relist[1].ID)
}

func TestCreateDuplicateNumberInSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := baseInput(f.acme.ID)
	input.Number = 7
	input.Session = "2023-2024"
	_, err := f.svc.Create(ctx, input)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
	assert.Len(t, f.cache.ListChallans(), 1)

	input.Session = "2024-2025"
	_, err = f.svc.Create(ctx, input)
	require.NoError(t, err)
}

func TestCreateRollsBackOnProductFailure(t *testing.T) {
	f := newFixture(t)
	input := baseInput(f.acme.ID)
	input.Products = []ProductInput{{Description: "ok", Quantity: 1}}
	// The challan insert succeeds and the product insert fails in the same transaction.
	require.NoError(t, f.client.DB().Exec("DROP TABLE challan_products").Error)

	_, err := f.svc.Create(context.Background(), input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Challan{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, f.cache.ListChallans())
}

func TestNewChallanInfoUsesMaxPlusOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	info, err := f.svc.NewChallanInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, NewChallanInfo{Session: "2024-2025", Number: 1}, info)

	for _, n := range []int{1, 2, 5} {
		input := baseInput(f.acme.ID)
		input.Number = n
		_, err := f.svc.Create(ctx, input)
		require.NoError(t, err)
	}
	other := baseInput(f.acme.ID)
	other.Number = 40
	other.Session = "2023-2024"
	_, err = f.svc.Create(ctx, other)
	require.NoError(t, err)

	info, err = f.svc.NewChallanInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, info.Number, "gaps are not refilled")
}

func TestUpdateNotesOnlyLeavesEverythingElse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := baseInput(f.acme.ID)
	input.Products = append(input.Products, ProductInput{Description: "Bolt", Quantity: 10, Comment: strPtr("boxed")})
	created, err := f.svc.Create(ctx, input)
	require.NoError(t, err)
	before, err := f.cache.FindChallanByID(created.ID)
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, created.ID, ChallanPatch{Notes: types.Some(strPtr("left at gate"))})
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "left at gate", *updated.Notes)

	after, err := f.cache.FindChallanByID(created.ID)
	require.NoError(t, err)
	after.Notes = before.Notes
	assert.Equal(t, before, after)

	var row models.Challan
	require.NoError(t, f.client.DB().First(&row, created.ID).Error)
	assert.Equal(t, "left at gate", *row.Notes)
}

func TestUpdateNullClearsNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := baseInput(f.acme.ID)
	input.Notes = strPtr("fragile")
	created, err := f.svc.Create(ctx, input)
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, created.ID, ChallanPatch{Notes: types.Field[*string]{Set: true}})
	require.NoError(t, err)
	assert.Nil(t, updated.Notes)

	var row models.Challan
	require.NoError(t, f.client.DB().First(&row, created.ID).Error)
	assert.Nil(t, row.Notes)
}

func TestUpdateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, baseInput(f.acme.ID))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, created.ID, ChallanPatch{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Update(ctx, created.ID, ChallanPatch{Products: types.Some([]ProductInput{})})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Update(ctx, created.ID, ChallanPatch{DeliveredBy: types.Some("  ")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Update(ctx, 404, ChallanPatch{Received: types.Some(true)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Update(ctx, created.ID, ChallanPatch{BuyerID: types.Some(int64(999))})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForeignKey))

	after, err := f.cache.FindChallanByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Buyer.ID, after.Buyer.ID)
	assert.Len(t, after.Products, 1)
}

func TestUpdateReplacesProductsAndBuyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Create(ctx, baseInput(f.acme.ID))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, baseInput(f.acme.ID))
	require.NoError(t, err)

	patch := ChallanPatch{
		BuyerID:  types.Some(f.zenith.ID),
		Received: types.Some(true),
		Products: types.Some([]ProductInput{
			{Description: "Pipe", Quantity: 2},
			{Description: "Valve", Quantity: 3},
		}),
	}
	updated, err := f.svc.Update(ctx, first.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, "Zenith", updated.Buyer.Name)
	assert.True(t, updated.Received)
	require.Len(t, updated.Products, 2)
	assert.Equal(t, "Valve", updated.Products[1].Description)

	list := f.cache.ListChallans()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID, "position is preserved")

	reloaded := cache.New()
	require.NoError(t, reloaded.Load(ctx, cache.NewGormSource(f.client)))
	fromStore, err := reloaded.FindChallanByID(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Zenith", fromStore.Buyer.Name)
	require.Len(t, fromStore.Products, 2)
	assert.Equal(t, "Pipe", fromStore.Products[0].Description)
	assert.True(t, fromStore.Received)
}

func TestUpdateConflictRollsBackProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Create(ctx, baseInput(f.acme.ID))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, baseInput(f.acme.ID))
	require.NoError(t, err)

	patch := ChallanPatch{
		Number:   types.Some(2),
		Products: types.Some([]ProductInput{{Description: "Replaced", Quantity: 1}}),
	}
	_, err = f.svc.Update(ctx, first.ID, patch)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	products, err := NewRepository(f.client.DB()).ListProducts(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Steel rod", products[0].Description)

	cached, err := f.cache.FindChallanByID(first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.Number)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Create(ctx, baseInput(f.acme.ID))
	require.NoError(t, err)
	z := baseInput(f.zenith.ID)
	z.Received = true
	_, err = f.svc.Create(ctx, z)
	require.NoError(t, err)

	acmeID := f.acme.ID
	byBuyer := f.svc.List(ctx, ListFilter{BuyerID: &acmeID})
	require.Len(t, byBuyer, 1)
	assert.Equal(t, a.ID, byBuyer[0].ID)

	received := true
	assert.Len(t, f.svc.List(ctx, ListFilter{Received: &received}), 1)

	session := "2023-2024"
	assert.Empty(t, f.svc.List(ctx, ListFilter{Session: &session}))
	assert.Len(t, f.svc.List(ctx, ListFilter{}), 2)
}

func TestBuyerRenameRefreshesChallans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, baseInput(f.acme.ID))
	require.NoError(t, err)

	renamed, err := f.cache.FindBuyerByID(f.acme.ID)
	require.NoError(t, err)
	require.NoError(t, f.cache.RekeyBuyer("Acme", "Acme Corp", renamed))

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.Buyer.Name)
}
