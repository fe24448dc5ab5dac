package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Challan is a delivery note. (Number, Session) is unique.
type Challan struct {
	ID              int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Number          int             `gorm:"column:number;not null;uniqueIndex:idx_challans_number_session"`
	Session         string          `gorm:"column:session;not null;uniqueIndex:idx_challans_number_session"`
	BuyerID         int64           `gorm:"column:buyer_id;not null;index"`
	DeliveredBy     string          `gorm:"column:delivered_by;not null"`
	VehicleNumber   string          `gorm:"column:vehicle_number;not null"`
	Value           decimal.Decimal `gorm:"column:value;type:numeric(12,2);not null"`
	Notes           *string         `gorm:"column:notes"`
	Received        bool            `gorm:"column:received;not null"`
	Cancelled       bool            `gorm:"column:cancelled;not null"`
	DigitallySigned bool            `gorm:"column:digitally_signed;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime;<-:create"`
}

func (Challan) TableName() string { return "challans" }
