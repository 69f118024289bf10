// Package domain describes the remote billing provider the storefront
// mirrors its catalog into, and the events it receives back from it.
package domain

import (
	"context"
	"net/http"
	"time"
)

// Provider is the remote billing system of record. Implementations must be
// safe for concurrent use; every call is bounded by the caller's context.
type Provider interface {
	Name() string

	CreateProduct(ctx context.Context, in CreateProductInput) (*RemoteProduct, error)
	GetProduct(ctx context.Context, id string) (*RemoteProduct, error)
	UpdateProduct(ctx context.Context, id string, in UpdateProductInput) (*RemoteProduct, error)

	// Prices are immutable remotely; a changed amount always means a new price.
	CreatePrice(ctx context.Context, in CreatePriceInput) (*RemotePrice, error)
	GetPrice(ctx context.Context, id string) (*RemotePrice, error)

	FindCustomerByEmail(ctx context.Context, email string) (*RemoteCustomer, error)
	CreateCustomer(ctx context.Context, in CreateCustomerInput) (*RemoteCustomer, error)

	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*RemoteCheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*RemoteCheckoutSession, error)
	ListCheckoutLineItems(ctx context.Context, sessionID string) ([]RemoteLineItem, error)

	CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*RemotePaymentIntent, error)
	CreateRefund(ctx context.Context, in RefundInput) (*RemoteRefund, error)
	UpdateDispute(ctx context.Context, id string, in DisputeEvidenceInput) (*RemoteDispute, error)

	CreateSubscription(ctx context.Context, in SubscriptionInput) (*RemoteSubscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]RemoteSubscription, error)
	CancelSubscription(ctx context.Context, id string) (*RemoteSubscription, error)
}

// WebhookVerifier authenticates and decodes provider webhook deliveries.
type WebhookVerifier interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

type CreateProductInput struct {
	Name           string
	Description    string
	ImageURL       string
	Active         bool
	Metadata       map[string]string
	IdempotencyKey string
}

type UpdateProductInput struct {
	Name        *string
	Description *string
	ImageURL    *string
	Active      *bool
}

type RemoteProduct struct {
	ID          string
	Name        string
	Description string
	Active      bool
	Deleted     bool
	Metadata    map[string]string
}

type CreatePriceInput struct {
	ProductID      string
	UnitAmount     int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type RemotePrice struct {
	ID         string
	ProductID  string
	UnitAmount int64
	Currency   string
	Active     bool
	Metadata   map[string]string
}

type CreateCustomerInput struct {
	Email          string
	Name           string
	Metadata       map[string]string
	IdempotencyKey string
}

type RemoteCustomer struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
}

type LineItemInput struct {
	PriceID  string
	Quantity int64
}

type CheckoutSessionInput struct {
	Mode                string
	CustomerID          string
	CustomerEmail       string
	LineItems           []LineItemInput
	SuccessURL          string
	CancelURL           string
	Metadata            map[string]string
	ShippingCountries   []string
	AllowPromotionCodes bool
	IdempotencyKey      string
}

type RemoteCheckoutSession struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	CustomerID      string
	CustomerEmail   string
	CustomerName    string
	PaymentIntentID string
	Metadata        map[string]string
}

type RemoteLineItem struct {
	PriceID       string
	ProductID     string
	Quantity      int64
	AmountTotal   int64
	PriceMetadata map[string]string
}

type PaymentIntentInput struct {
	Amount         int64
	Currency       string
	CustomerID     string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

type RemotePaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       string
}

// Refund reasons accepted by the provider.
const (
	RefundReasonDuplicate           = "duplicate"
	RefundReasonFraudulent          = "fraudulent"
	RefundReasonRequestedByCustomer = "requested_by_customer"
)

type RefundInput struct {
	PaymentIntentID string
	// Amount in minor units; nil refunds the full remaining amount.
	Amount         *int64
	Reason         string
	IdempotencyKey string
}

type RemoteRefund struct {
	ID              string
	PaymentIntentID string
	Amount          int64
	Status          string
}

type DisputeEvidenceInput struct {
	Evidence map[string]string
	Submit   bool
}

type RemoteDispute struct {
	ID       string
	ChargeID string
	Amount   int64
	Reason   string
	Status   string
}

type SubscriptionInput struct {
	CustomerID     string
	PriceID        string
	Metadata       map[string]string
	IdempotencyKey string
}

type RemoteSubscription struct {
	ID                string
	CustomerID        string
	PriceID           string
	Status            string
	CurrentPeriodEnd  *time.Time
	CanceledAt        *time.Time
	CancelAtPeriodEnd bool
	Metadata          map[string]string
	// ClientSecret is set on creation when the first invoice needs confirmation.
	ClientSecret string
}
