package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when a customer with the same email or remote id already exists.
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Customer, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Customer, error)
	FindByRemoteID(ctx context.Context, db *gorm.DB, remoteID string) (*Customer, error)
	List(ctx context.Context, db *gorm.DB, filter ListCustomerFilter, page pagination.Pagination) ([]*Customer, error)
	// SetRemoteID only fills an empty remote id; it reports whether a row changed.
	SetRemoteID(ctx context.Context, db *gorm.DB, id int64, remoteID string, at time.Time) (bool, error)
	AddOrder(ctx context.Context, db *gorm.DB, remoteID string, amount decimal.Decimal, at time.Time) (bool, error)
	SubtractSpent(ctx context.Context, db *gorm.DB, remoteID string, amount decimal.Decimal, at time.Time) (bool, error)
}
