package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, unit *Unit) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Unit, error)
	ListByProduct(ctx context.Context, db *gorm.DB, productID int64) ([]Unit, error)
	ListByProducts(ctx context.Context, db *gorm.DB, productIDs []int64) ([]Unit, error)
	FindDefault(ctx context.Context, db *gorm.DB, productID int64) (*Unit, error)
	Update(ctx context.Context, db *gorm.DB, unit *Unit) error
	// ClearDefault unsets is_default on every unit of the product except keepID.
	ClearDefault(ctx context.Context, db *gorm.DB, productID, keepID int64) error
	Delete(ctx context.Context, db *gorm.DB, id int64) error
}
