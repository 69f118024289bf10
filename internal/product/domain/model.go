package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID              int64           `json:"id" gorm:"primaryKey"`
	Code            string          `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name            string          `json:"name" gorm:"type:text;not null"`
	Description     string          `json:"description" gorm:"type:text;not null;default:''"`
	BasePrice       decimal.Decimal `json:"base_price" gorm:"type:numeric(10,2);not null"`
	ImageURL        *string         `json:"image_url,omitempty" gorm:"column:image_url;type:text"`
	IsFeatured      bool            `json:"is_featured" gorm:"not null;default:false"`
	IsAvailable     bool            `json:"is_available" gorm:"not null;default:true"`
	Category        string          `json:"category" gorm:"type:text;not null;default:'cookies'"`
	Ingredients     *string         `json:"ingredients,omitempty" gorm:"type:text"`
	Allergens       *string         `json:"allergens,omitempty" gorm:"type:text"`
	UnitType        string          `json:"unit_type" gorm:"type:text;not null;default:'individual'"`
	MinQuantity     int             `json:"min_quantity" gorm:"not null;default:1"`
	MaxQuantity     int             `json:"max_quantity" gorm:"not null;default:100"`
	RemoteProductID *string         `json:"remote_product_id,omitempty" gorm:"type:text;uniqueIndex"`
	RemotePriceID   *string         `json:"remote_price_id,omitempty" gorm:"type:text;uniqueIndex"`
	RemoteSyncedAt  *time.Time      `json:"remote_synced_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Product) TableName() string { return "products" }

// IsSynced reports whether the product has been mirrored to the billing provider.
func (p *Product) IsSynced() bool {
	return p.RemoteProductID != nil && *p.RemoteProductID != "" &&
		p.RemotePriceID != nil && *p.RemotePriceID != ""
}
