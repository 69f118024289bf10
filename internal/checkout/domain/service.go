// Package domain describes building remote checkout sessions from a cart.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type CartItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type CustomerInfo struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email,max=320"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

type CheckoutRequest struct {
	Items    []CartItem   `json:"items" validate:"required,min=1,max=50,dive"`
	Customer CustomerInfo `json:"customer"`
}

type SessionResult struct {
	SessionID        string `json:"session_id"`
	URL              string `json:"url"`
	RemoteCustomerID string `json:"customer_id"`
	AmountTotal      string `json:"amount_total"`
	Currency         string `json:"currency"`
}

type PaymentIntentResult struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}

type SessionStatus struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	AmountTotal     string            `json:"amount_total"`
	Currency        string            `json:"currency"`
	CustomerEmail   string            `json:"customer_email,omitempty"`
	CustomerName    string            `json:"customer_name,omitempty"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type Service interface {
	CreateCheckoutSession(ctx context.Context, items []CartItem, info CustomerInfo) (*SessionResult, error)
	CreatePaymentIntent(ctx context.Context, items []CartItem, info CustomerInfo) (*PaymentIntentResult, error)
	VerifySession(ctx context.Context, sessionID string) (*SessionStatus, error)
}

var (
	ErrEmptyCart          = errors.New("empty_cart")
	ErrInvalidItem        = errors.New("invalid_item")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidCustomer    = errors.New("invalid_customer")
	ErrProductNotFound    = errors.New("product_not_found")
	ErrProductUnavailable = errors.New("product_unavailable")
	ErrInvalidSession     = errors.New("invalid_session")
	ErrSessionNotFound    = errors.New("session_not_found")
)

// ValidationError carries per-field messages for a rejected cart.
type ValidationError struct {
	Err    error
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Err, e.Fields)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Metadata keys written on every session and payment intent.
const (
	MetadataCustomerName = "customer_name"
	MetadataCustomerID   = "customer_id"
	MetadataItems        = "items"
	MetadataSessionID    = "session_id"
)

// MetadataItem is one cart line as stored in the "items" metadata value.
type MetadataItem struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

// maxMetadataValue is the provider's limit for a single metadata value.
const maxMetadataValue = 500

// EncodeItems returns "" when the encoded cart would not fit into one
// metadata value; consumers then fall back to the session line items.
func EncodeItems(items []MetadataItem) string {
	b, err := json.Marshal(items)
	if err != nil || len(b) > maxMetadataValue {
		return ""
	}
	return string(b)
}

func DecodeItems(raw string) ([]MetadataItem, error) {
	if raw == "" {
		return nil, nil
	}
	var items []MetadataItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}
