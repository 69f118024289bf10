package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Unit is a purchasable pack of a product, e.g. a half dozen at a discount.
type Unit struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	ProductID   int64           `json:"product_id" gorm:"not null;index"`
	Name        string          `json:"name" gorm:"type:text;not null"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(10,2);not null"`
	IsDefault   bool            `json:"is_default" gorm:"not null;default:false"`
	IsAvailable bool            `json:"is_available" gorm:"not null;default:true"`
	SortOrder   int             `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Unit) TableName() string { return "product_units" }
