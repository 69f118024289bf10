package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCanceled  Status = "canceled"
	StatusRefunded  Status = "refunded"
	StatusDisputed  Status = "disputed"
)

// transitions lists every allowed forward move. disputed -> paid exists only
// for a dispute closed in the merchant's favour; callers gate it on policy.
var transitions = map[Status][]Status{
	StatusPending:  {StatusPaid, StatusCanceled},
	StatusPaid:     {StatusShipped, StatusCanceled, StatusRefunded, StatusDisputed},
	StatusShipped:  {StatusDelivered, StatusRefunded, StatusDisputed},
	StatusDisputed: {StatusRefunded, StatusPaid},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered,
		StatusCanceled, StatusRefunded, StatusDisputed:
		return true
	default:
		return false
	}
}

// Revenue statuses count toward sales figures.
var RevenueStatuses = []Status{StatusPaid, StatusShipped, StatusDelivered}

// Order is one paid checkout. RefundedAmount is the running total the billing
// provider reports as refunded for its charge.
type Order struct {
	ID                    int64           `json:"id" gorm:"primaryKey"`
	CustomerName          string          `json:"customer_name" gorm:"type:text;not null"`
	CustomerEmail         string          `json:"customer_email" gorm:"type:text;not null;index"`
	TotalPrice            decimal.Decimal `json:"total_price" gorm:"type:numeric(10,2);not null"`
	RemotePaymentIntentID *string         `json:"remote_payment_intent_id,omitempty" gorm:"type:text;uniqueIndex"`
	RemoteCustomerID      *string         `json:"remote_customer_id,omitempty" gorm:"type:text"`
	RemoteSessionID       *string         `json:"remote_session_id,omitempty" gorm:"type:text"`
	Status                Status          `json:"status" gorm:"type:text;not null;default:'pending'"`
	RefundedAmount        decimal.Decimal `json:"refunded_amount" gorm:"type:numeric(10,2);not null;default:0"`
	CreatedAt             time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Order) TableName() string { return "orders" }

// Item is one order line. Lines are written with their order and never change.
type Item struct {
	OrderID   int64               `gorm:"primaryKey;autoIncrement:false"`
	ProductID int64               `gorm:"primaryKey;autoIncrement:false"`
	Quantity  int                 `gorm:"not null"`
	UnitPrice decimal.NullDecimal `gorm:"type:numeric(10,2)"`
}

func (Item) TableName() string { return "order_items" }

// ItemDetail is an order line joined with its product.
type ItemDetail struct {
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.NullDecimal
	BasePrice   decimal.Decimal
}

// Price returns the captured unit price, falling back to the product's
// current base price for lines recorded without one.
func (d ItemDetail) Price() decimal.Decimal {
	if d.UnitPrice.Valid {
		return d.UnitPrice.Decimal
	}
	return d.BasePrice
}
