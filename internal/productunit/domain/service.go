package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	List(ctx context.Context, productID string) ([]Response, error)
	ListForProducts(ctx context.Context, productIDs []int64) (map[int64][]Response, error)
	GetDefault(ctx context.Context, productID string) (*Response, error)
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	// CreateDefaultUnits writes the configured tiers for a new product using db,
	// which may be an open transaction.
	CreateDefaultUnits(ctx context.Context, db *gorm.DB, productID int64, basePrice decimal.Decimal) ([]Response, error)
}

type CreateRequest struct {
	ProductID   string `json:"-"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	IsDefault   bool   `json:"is_default"`
	IsAvailable *bool  `json:"is_available"`
	SortOrder   int    `json:"sort_order"`
}

type UpdateRequest struct {
	ID          string  `json:"-"`
	Name        *string `json:"name"`
	Quantity    *int    `json:"quantity"`
	Price       *string `json:"price"`
	IsDefault   *bool   `json:"is_default"`
	IsAvailable *bool   `json:"is_available"`
	SortOrder   *int    `json:"sort_order"`
}

type Response struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	Name        string    `json:"name"`
	Quantity    int       `json:"quantity"`
	Price       string    `json:"price"`
	IsDefault   bool      `json:"is_default"`
	IsAvailable bool      `json:"is_available"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidProduct  = errors.New("invalid_product")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrNotFound        = errors.New("not_found")
)
