// Package domain composes products, their pricing units and their billing
// mirror into the storefront catalog.
package domain

import (
	"context"

	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	unitdomain "github.com/smallbiznis/cookiejar/internal/productunit/domain"
)

type ProductDetail struct {
	productdomain.Response
	Units []unitdomain.Response `json:"units"`
	// SyncError is set when the local write succeeded but the billing mirror did not.
	SyncError string `json:"sync_error,omitempty"`
}

type BulkAvailabilityResult struct {
	Updated []string          `json:"updated"`
	Failed  map[string]string `json:"failed,omitempty"`
}

type Service interface {
	ListProducts(ctx context.Context, req productdomain.ListRequest) ([]ProductDetail, error)
	GetProduct(ctx context.Context, id string) (*ProductDetail, error)
	CreateProduct(ctx context.Context, req productdomain.CreateRequest) (*ProductDetail, error)
	UpdateProduct(ctx context.Context, req productdomain.UpdateRequest) (*ProductDetail, error)
	SetAvailability(ctx context.Context, id string, available bool) (*ProductDetail, error)
	BulkSetAvailability(ctx context.Context, ids []string, available bool) (BulkAvailabilityResult, error)
}
