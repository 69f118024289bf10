package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListCustomerRequest struct {
	PageToken string
	PageSize  int32
	Email     string
	Active    *bool
}

type ListCustomerFilter struct {
	Email  string
	Active *bool
}

type ListCustomerResponse struct {
	PageInfo  pagination.PageInfo `json:"page_info"`
	Customers []Response          `json:"customers"`
}

type Response struct {
	ID               string     `json:"id"`
	RemoteCustomerID *string    `json:"remote_customer_id,omitempty"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Phone            *string    `json:"phone,omitempty"`
	TotalOrders      int        `json:"total_orders"`
	TotalSpent       string     `json:"total_spent"`
	LastOrderAt      *time.Time `json:"last_order_at,omitempty"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Service interface {
	List(ctx context.Context, req ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(ctx context.Context, id string) (*Response, error)
}

// Resolver maps storefront customers to remote billing customers.
type Resolver interface {
	// Resolve returns the remote customer id for email, creating the remote
	// customer when neither side knows it yet.
	Resolve(ctx context.Context, email, name string) (string, error)
	RecordOrder(ctx context.Context, remoteCustomerID string, amount decimal.Decimal, at time.Time) error
	RecordRefund(ctx context.Context, remoteCustomerID string, amount decimal.Decimal) error
	EnsureFromRemote(ctx context.Context, remoteCustomerID, email, name string) error
	// WithTx binds the local bookkeeping methods to tx. Resolve must not be
	// called on the returned resolver.
	WithTx(tx *gorm.DB) Resolver
}

var (
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("not_found")
)
