package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	SetAvailability(ctx context.Context, id string, available bool) (*Response, error)
}

type ListRequest struct {
	Available *bool
	Featured  *bool
	Category  string
	SortBy    string
	OrderBy   string
}

type CreateRequest struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BasePrice   string  `json:"base_price"`
	ImageURL    *string `json:"image_url"`
	IsFeatured  bool    `json:"is_featured"`
	IsAvailable *bool   `json:"is_available"`
	Category    string  `json:"category"`
	Ingredients *string `json:"ingredients"`
	Allergens   *string `json:"allergens"`
	UnitType    string  `json:"unit_type"`
	MinQuantity *int    `json:"min_quantity"`
	MaxQuantity *int    `json:"max_quantity"`
}

type UpdateRequest struct {
	ID          string  `json:"-"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	BasePrice   *string `json:"base_price"`
	ImageURL    *string `json:"image_url"`
	IsFeatured  *bool   `json:"is_featured"`
	Category    *string `json:"category"`
	Ingredients *string `json:"ingredients"`
	Allergens   *string `json:"allergens"`
	UnitType    *string `json:"unit_type"`
	MinQuantity *int    `json:"min_quantity"`
	MaxQuantity *int    `json:"max_quantity"`
}

type Response struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	BasePrice       string     `json:"base_price"`
	ImageURL        *string    `json:"image_url,omitempty"`
	IsFeatured      bool       `json:"is_featured"`
	IsAvailable     bool       `json:"is_available"`
	Category        string     `json:"category"`
	Ingredients     *string    `json:"ingredients,omitempty"`
	Allergens       *string    `json:"allergens,omitempty"`
	UnitType        string     `json:"unit_type"`
	MinQuantity     int        `json:"min_quantity"`
	MaxQuantity     int        `json:"max_quantity"`
	RemoteProductID *string    `json:"remote_product_id,omitempty"`
	RemotePriceID   *string    `json:"remote_price_id,omitempty"`
	RemoteSyncedAt  *time.Time `json:"remote_synced_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidCode          = errors.New("invalid_code")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrInvalidQuantityRange = errors.New("invalid_quantity_range")
	ErrInvalidID            = errors.New("invalid_id")
	ErrNotFound             = errors.New("not_found")
	ErrCodeAlreadyExists    = errors.New("code_already_exists")
)
