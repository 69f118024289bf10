package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ListFilter struct {
	Available *bool
	Featured  *bool
	Category  string
	// Unsynced restricts the list to products without a remote product id.
	Unsynced bool
	SortBy   string
	OrderBy  string
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []int64) ([]Product, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Product, error)
	Update(ctx context.Context, db *gorm.DB, product *Product) error
	SetAvailability(ctx context.Context, db *gorm.DB, id int64, available bool, at time.Time) (bool, error)
	UpdateRemoteIDs(ctx context.Context, db *gorm.DB, id int64, remoteProductID, remotePriceID string, syncedAt time.Time) error
	TouchSynced(ctx context.Context, db *gorm.DB, id int64, syncedAt time.Time) error
}
