package domain

import (
	"context"
	"errors"
	"time"

	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (CreateSubscriptionResponse, error)
	ListActive(ctx context.Context, remoteCustomerID string) ([]Response, error)
	Cancel(ctx context.Context, remoteSubscriptionID string) (Response, error)
}

// Mirror keeps the local subscription rows in step with the provider.
type Mirror interface {
	Apply(ctx context.Context, tx *gorm.DB, remote billingdomain.RemoteSubscription) (*Subscription, error)
}

type CreateSubscriptionRequest struct {
	Plan          string `json:"plan"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	// Items is the customer's preferred box contents, stored as metadata.
	Items []BoxItem `json:"items"`
}

type BoxItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlanResponse struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateSubscriptionResponse struct {
	SubscriptionID   string             `json:"subscription_id"`
	RemoteCustomerID string             `json:"customer_id"`
	Plan             PlanResponse       `json:"plan"`
	Status           SubscriptionStatus `json:"status"`
	ClientSecret     string             `json:"client_secret,omitempty"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
}

type Response struct {
	SubscriptionID    string             `json:"subscription_id"`
	RemoteCustomerID  string             `json:"customer_id"`
	Plan              string             `json:"plan"`
	Status            SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  *time.Time         `json:"current_period_end,omitempty"`
	CanceledAt        *time.Time         `json:"canceled_at,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
}

var (
	ErrInvalidPlan         = errors.New("invalid_plan")
	ErrPlanNotConfigured   = errors.New("plan_not_configured")
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrInvalidItems        = errors.New("invalid_items")
	ErrInvalidSubscription = errors.New("invalid_subscription")
	ErrNotFound            = errors.New("not_found")
)
