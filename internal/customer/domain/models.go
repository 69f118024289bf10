package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Customer struct {
	ID               int64           `gorm:"primaryKey" json:"id"`
	RemoteCustomerID *string         `gorm:"column:remote_customer_id;uniqueIndex" json:"remote_customer_id,omitempty"`
	Email            string          `gorm:"not null;uniqueIndex" json:"email"`
	Name             string          `gorm:"not null;default:''" json:"name"`
	Phone            *string         `json:"phone,omitempty"`
	Preferences      datatypes.JSON  `gorm:"type:jsonb" json:"preferences,omitempty"`
	TotalOrders      int             `gorm:"not null;default:0" json:"total_orders"`
	TotalSpent       decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"total_spent"`
	LastOrderAt      *time.Time      `json:"last_order_at,omitempty"`
	IsActive         bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }
