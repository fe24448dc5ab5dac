package models

// Product is a line item owned by a challan.
type Product struct {
	ID           int64   `gorm:"column:id;primaryKey;autoIncrement"`
	ChallanID    int64   `gorm:"column:challan_id;not null;index"`
	Description  string  `gorm:"column:description;not null"`
	Quantity     int     `gorm:"column:quantity;not null"`
	Comment      *string `gorm:"column:comment"`
	SerialNumber *string `gorm:"column:serial_number"`
}

func (Product) TableName() string { return "challan_products" }
