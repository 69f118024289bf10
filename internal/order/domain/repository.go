package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status Status
	Email  string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	InsertItems(ctx context.Context, db *gorm.DB, items []Item) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Order, error)
	FindByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*Order, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Order, error)
	ListItems(ctx context.Context, db *gorm.DB, orderIDs []int64) ([]ItemDetail, error)
	// CompareAndSetStatus moves the order only while it still has status from.
	CompareAndSetStatus(ctx context.Context, db *gorm.DB, id int64, from, to Status, at time.Time) (bool, error)
	// SetRefundedAmount replaces the refunded total only while it still equals from.
	SetRefundedAmount(ctx context.Context, db *gorm.DB, id int64, from, to decimal.Decimal, at time.Time) (bool, error)
}
