package models

// Buyer is a customer receiving challans. Name and alias are unique.
type Buyer struct {
	ID      int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Name    string  `gorm:"column:name;not null;uniqueIndex"`
	Address string  `gorm:"column:address;not null"`
	State   string  `gorm:"column:state;not null"`
	GST     *string `gorm:"column:gst"`
	Alias   *string `gorm:"column:alias;uniqueIndex"`
}

func (Buyer) TableName() string { return "buyers" }
