package cache

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/crsmanager/crs-backend/pkg/db/models"
)

// Buyer is the cached view of a buyer row.
type Buyer struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Address string  `json:"address"`
	State   string  `json:"state"`
	GST     *string `json:"gst"`
	Alias   *string `json:"alias"`
}

// Product is one line item of a challan. Products have no identity outside
// their challan.
type Product struct {
	Description  string  `json:"description"`
	Quantity     int     `json:"quantity"`
	Comment      *string `json:"comment"`
	SerialNumber *string `json:"serial_number"`
}

// Challan is the cached view of a challan together with a snapshot of its
// buyer and its ordered products.
type Challan struct {
	ID              int64           `json:"id"`
	Number          int             `json:"number"`
	Session         string          `json:"session"`
	Buyer           Buyer           `json:"buyer"`
	DeliveredBy     string          `json:"delivered_by"`
	VehicleNumber   string          `json:"vehicle_number"`
	Value           decimal.Decimal `json:"value"`
	Notes           *string         `json:"notes"`
	Received        bool            `json:"received"`
	Cancelled       bool            `json:"cancelled"`
	DigitallySigned bool            `json:"digitally_signed"`
	CreatedAt       time.Time       `json:"created_at"`
	Products        []Product       `json:"products"`
}

// Position selects where InsertChallan places a new entry.
type Position int

const (
	// Front places the entry first, keeping the list newest-first.
	Front Position = iota
	// Back appends the entry.
	Back
)

// BuyerFromModel converts a persisted buyer row.
func BuyerFromModel(m models.Buyer) Buyer {
	return Buyer{
		ID:      m.ID,
		Name:    m.Name,
		Address: m.Address,
		State:   m.State,
		GST:     cloneString(m.GST),
		Alias:   cloneString(m.Alias),
	}
}

// ProductFromModel converts a persisted product row.
func ProductFromModel(m models.Product) Product {
	return Product{
		Description:  m.Description,
		Quantity:     m.Quantity,
		Comment:      cloneString(m.Comment),
		SerialNumber: cloneString(m.SerialNumber),
	}
}

// ChallanFromModel assembles a cached challan from its persisted row, buyer
// snapshot and product rows.
func ChallanFromModel(m models.Challan, buyer Buyer, products []models.Product) Challan {
	items := make([]Product, 0, len(products))
	for _, p := range products {
		items = append(items, ProductFromModel(p))
	}
	return Challan{
		ID:              m.ID,
		Number:          m.Number,
		Session:         m.Session,
		Buyer:           buyer,
		DeliveredBy:     m.DeliveredBy,
		VehicleNumber:   m.VehicleNumber,
		Value:           m.Value,
		Notes:           cloneString(m.Notes),
		Received:        m.Received,
		Cancelled:       m.Cancelled,
		DigitallySigned: m.DigitallySigned,
		CreatedAt:       m.CreatedAt,
		Products:        items,
	}
}

func (b Buyer) clone() Buyer {
	b.GST = cloneString(b.GST)
	b.Alias = cloneString(b.Alias)
	return b
}

func (c Challan) clone() Challan {
	c.Buyer = c.Buyer.clone()
	c.Notes = cloneString(c.Notes)
	products := make([]Product, len(c.Products))
	for i, p := range c.Products {
		p.Comment = cloneString(p.Comment)
		p.SerialNumber = cloneString(p.SerialNumber)
		products[i] = p
	}
	c.Products = products
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
