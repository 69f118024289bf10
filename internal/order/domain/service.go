package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/cookiejar/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	List(ctx context.Context, req ListOrderRequest) (ListOrderResponse, error)
	Get(ctx context.Context, id string) (*Response, error)
	Ship(ctx context.Context, id string) (*Response, error)
	Deliver(ctx context.Context, id string) (*Response, error)
	Cancel(ctx context.Context, id string) (*Response, error)
	// Refund asks the provider to refund the order's payment. Local status
	// follows the provider's charge.refunded event.
	Refund(ctx context.Context, id string, req RefundRequest) (*RefundResponse, error)
	SubmitDisputeEvidence(ctx context.Context, disputeID string, req DisputeEvidenceRequest) (*DisputeResponse, error)
	Receipt(ctx context.Context, id string) ([]byte, error)
}

// Transitioner applies a compare-and-set status change inside the caller's
// transaction (nil uses the service's own handle). It returns false without
// error when the order already has the target status, and updates order in
// place on success.
type Transitioner interface {
	Transition(ctx context.Context, tx *gorm.DB, order *Order, to Status) (bool, error)
	// Publish announces a committed change; an empty previous status marks a new order.
	Publish(ctx context.Context, order *Order, previous Status)
}

type ListOrderRequest struct {
	PageToken string
	PageSize  int32
	Status    string
	Email     string
}

type ListOrderResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Orders   []Response          `json:"orders"`
}

type RefundRequest struct {
	// Amount is a decimal currency amount; empty refunds the remaining balance.
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

type RefundResponse struct {
	RefundID        string `json:"refund_id"`
	OrderID         string `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          string `json:"amount"`
	Status          string `json:"status"`
}

type DisputeEvidenceRequest struct {
	Evidence map[string]string `json:"evidence"`
	Submit   bool              `json:"submit"`
}

type DisputeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount string `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

type ItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
}

type Response struct {
	ID                    string         `json:"id"`
	CustomerName          string         `json:"customer_name"`
	CustomerEmail         string         `json:"customer_email"`
	TotalPrice            string         `json:"total_price"`
	RefundedAmount        string         `json:"refunded_amount"`
	Status                Status         `json:"status"`
	RemotePaymentIntentID *string        `json:"remote_payment_intent_id,omitempty"`
	RemoteCustomerID      *string        `json:"remote_customer_id,omitempty"`
	RemoteSessionID       *string        `json:"remote_session_id,omitempty"`
	Items                 []ItemResponse `json:"items"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidReason     = errors.New("invalid_reason")
	ErrInvalidDispute    = errors.New("invalid_dispute")
	ErrInvalidEvidence   = errors.New("invalid_evidence")
	ErrNotPaid           = errors.New("order_not_paid")
	ErrNotFound          = errors.New("not_found")
	// ErrConflict means the order changed status while the request was in flight.
	ErrConflict = errors.New("status_conflict")
)
