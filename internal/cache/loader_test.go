package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/crsmanager/crs-backend/pkg/db/dbtest"
	"github.com/crsmanager/crs-backend/pkg/db/models"
	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
)

type stubSource struct {
	snap Snapshot
	err  error
}

func (s stubSource) Snapshot(context.Context) (Snapshot, error) {
	return s.snap, s.err
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func row(challanID, buyerID int64, buyerName string, productID int64, desc string) ChallanRow {
	r := ChallanRow{
		ChallanID: challanID,
		Number:    int(challanID),
		Session:   "2024-2025",
		BuyerID:   buyerID,
		Value:     decimal.NewFromInt(10),
	}
	if buyerName != "" {
		r.BuyerName = strPtr(buyerName)
		r.BuyerAddress = strPtr("addr")
		r.BuyerState = strPtr("GOA")
	}
	if productID != 0 {
		r.ProductID = int64Ptr(productID)
		r.Description = strPtr(desc)
		r.Quantity = intPtr(1)
	}
	return r
}

func TestLoadGroupsRowsInOrder(t *testing.T) {
	c := New()
	snap := Snapshot{
		Buyers: []models.Buyer{{ID: 1, Name: "Acme", Address: "addr", State: "GOA"}, {ID: 2, Name: "Zenith"}},
		Rows: []ChallanRow{
			row(3, 1, "Acme", 5, "c3-first"),
			row(3, 1, "Acme", 6, "c3-second"),
			row(2, 2, "Zenith", 4, "c2"),
			row(1, 1, "Acme", 1, "c1-a"),
			row(1, 1, "Acme", 2, "c1-b"),
			row(1, 1, "Acme", 3, "c1-c"),
		},
	}
	require.NoError(t, c.Load(context.Background(), stubSource{snap: snap}))

	assert.True(t, c.Loaded())
	stats := c.Stats()
	assert.Equal(t, 2, stats.Buyers)
	assert.Equal(t, 3, stats.Challans)
	assert.NotEmpty(t, stats.LastReloadTook)

	list := c.ListChallans()
	assert.Equal(t, []int64{3, 2, 1}, challanIDs(list))
	assert.Len(t, list[0].Products, 2)
	assert.Len(t, list[2].Products, 3)
	assert.Equal(t, "c3-first", list[0].Products[0].Description)
	assert.Equal(t, "Zenith", list[1].Buyer.Name)
}

func TestLoadEmptyStore(t *testing.T) {
	c := New()
	require.NoError(t, c.Load(context.Background(), stubSource{}))
	assert.True(t, c.Loaded())
	assert.Empty(t, c.ListChallans())
	assert.Empty(t, c.SearchBuyers(""))
}

type slowSource struct {
	snap  Snapshot
	delay time.Duration
}

func (s slowSource) Snapshot(ctx context.Context) (Snapshot, error) {
	select {
	case <-time.After(s.delay):
		return s.snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func TestReloadTimeout(t *testing.T) {
	snap := Snapshot{
		Buyers: []models.Buyer{{ID: 1, Name: "Acme"}},
		Rows:   []ChallanRow{row(1, 1, "Acme", 1, "c1")},
	}

	unbounded := New()
	require.NoError(t, unbounded.Reload(context.Background(), stubSource{snap: snap}, 0))
	assert.Equal(t, 1, unbounded.Stats().Challans)

	negative := New()
	require.NoError(t, negative.Reload(context.Background(), slowSource{snap: snap, delay: 10 * time.Millisecond}, -time.Second))
	assert.True(t, negative.Loaded())

	bounded := New()
	err := bounded.Reload(context.Background(), slowSource{snap: snap, delay: time.Second}, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.False(t, bounded.Loaded())
}

func TestLoadFailuresKeepPreviousContents(t *testing.T) {
	tests := []struct {
		name string
		src  stubSource
		code pkgerrors.Code
	}{
		{
			name: "duplicate buyer name",
			src:  stubSource{snap: Snapshot{Buyers: []models.Buyer{{ID: 7, Name: "Dup"}, {ID: 8, Name: "Dup"}}}},
			code: pkgerrors.CodeConflict,
		},
		{
			name: "challan without products",
			src:  stubSource{snap: Snapshot{Rows: []ChallanRow{row(9, 1, "Acme", 0, "")}}},
			code: pkgerrors.CodeIntegrity,
		},
		{
			name: "challan without buyer",
			src:  stubSource{snap: Snapshot{Rows: []ChallanRow{row(9, 42, "", 1, "x")}}},
			code: pkgerrors.CodeIntegrity,
		},
		{
			name: "rows not grouped",
			src: stubSource{snap: Snapshot{Rows: []ChallanRow{
				row(9, 1, "Acme", 1, "x"),
				row(8, 1, "Acme", 2, "y"),
				row(9, 1, "Acme", 3, "z"),
			}}},
			code: pkgerrors.CodeIntegrity,
		},
		{
			name: "source error",
			src:  stubSource{err: errors.New("connection refused")},
			code: pkgerrors.CodeDependency,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := New()
			good := Snapshot{
				Buyers: []models.Buyer{{ID: 1, Name: "Acme"}},
				Rows:   []ChallanRow{row(1, 1, "Acme", 1, "kept")},
			}
			require.NoError(t, c.Load(context.Background(), stubSource{snap: good}))

			err := c.Load(context.Background(), tc.src)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)

			list := c.ListChallans()
			require.Len(t, list, 1)
			assert.Equal(t, "kept", list[0].Products[0].Description)
			_, err = c.FindBuyerByName("Acme")
			assert.NoError(t, err)
		})
	}
}

func TestGormSourceSnapshot(t *testing.T) {
	client := dbtest.Client(t)
	conn := client.DB()

	acme := models.Buyer{Name: "Acme", Address: "12 Market Road", State: "KARNATAKA", GST: strPtr("29ABCDE1234F1Z5")}
	zenith := models.Buyer{Name: "Zenith", Address: "4 Port Lane", State: "GOA"}
	require.NoError(t, conn.Create(&acme).Error)
	require.NoError(t, conn.Create(&zenith).Error)

	first := seedChallan(t, conn, acme.ID, 1, "Bolt", "Nut")
	second := seedChallan(t, conn, zenith.ID, 2, "Pipe")

	c := New()
	require.NoError(t, c.Load(context.Background(), NewGormSource(client)))

	list := c.ListChallans()
	require.Len(t, list, 2)
	assert.Equal(t, []int64{second.ID, first.ID}, challanIDs(list))

	got := list[1]
	assert.Equal(t, "Acme", got.Buyer.Name)
	assert.Equal(t, "29ABCDE1234F1Z5", *got.Buyer.GST)
	assert.Equal(t, "2024-2025", got.Session)
	assert.True(t, decimal.RequireFromString("1250.75").Equal(got.Value))
	require.Len(t, got.Products, 2)
	assert.Equal(t, "Bolt", got.Products[0].Description)
	assert.Equal(t, "Nut", got.Products[1].Description)
	assert.Equal(t, 3, got.Products[1].Quantity)
	assert.True(t, got.Received)
	assert.False(t, got.CreatedAt.IsZero())

	assert.Equal(t, 2, c.Stats().Buyers)
}

func TestGormSourceDetectsChallanWithoutProducts(t *testing.T) {
	client := dbtest.Client(t)
	conn := client.DB()

	buyer := models.Buyer{Name: "Acme", Address: "addr", State: "GOA"}
	require.NoError(t, conn.Create(&buyer).Error)
	orphan := models.Challan{Number: 1, Session: "2024-2025", BuyerID: buyer.ID, DeliveredBy: "x", VehicleNumber: "y"}
	require.NoError(t, conn.Create(&orphan).Error)

	c := New()
	err := c.Load(context.Background(), NewGormSource(client))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIntegrity))
	assert.False(t, c.Loaded())
}

func seedChallan(t *testing.T, conn *gorm.DB, buyerID int64, number int, descriptions ...string) models.Challan {
	t.Helper()
	ch := models.Challan{
		Number:        number,
		Session:       "2024-2025",
		BuyerID:       buyerID,
		DeliveredBy:   "Ravi",
		VehicleNumber: "KA01AB1234",
		Value:         decimal.RequireFromString("1250.75"),
		Received:      true,
	}
	require.NoError(t, conn.Create(&ch).Error)
	for i, desc := range descriptions {
		p := models.Product{ChallanID: ch.ID, Description: desc, Quantity: i + 2}
		require.NoError(t, conn.Create(&p).Error)
	}
	return ch
}
