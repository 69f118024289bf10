package stripe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/cookiejar/internal/billing/domain"
)

type stripePaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type stripeRefund struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
}

type stripeDispute struct {
	ID     string `json:"id"`
	Charge string `json:"charge"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
	Status string `json:"status"`
}

func (c *Client) CreatePaymentIntent(ctx context.Context, in domain.PaymentIntentInput) (*domain.RemotePaymentIntent, error) {
	values := url.Values{}
	values.Set("amount", itoa(in.Amount))
	values.Set("currency", strings.ToLower(in.Currency))
	values.Set("automatic_payment_methods[enabled]", "true")
	if in.CustomerID != "" {
		values.Set("customer", in.CustomerID)
	}
	if in.ReceiptEmail != "" {
		values.Set("receipt_email", in.ReceiptEmail)
	}
	setMetadata(values, "metadata", in.Metadata)

	var out stripePaymentIntent
	if err := c.do(ctx, "payment_intents.create", http.MethodPost, "/v1/payment_intents", values, in.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, domain.ErrInvalidResponse
	}
	return &domain.RemotePaymentIntent{
		ID:           out.ID,
		ClientSecret: out.ClientSecret,
		Amount:       out.Amount,
		Currency:     out.Currency,
		Status:       out.Status,
	}, nil
}

func (c *Client) CreateRefund(ctx context.Context, in domain.RefundInput) (*domain.RemoteRefund, error) {
	values := url.Values{}
	values.Set("payment_intent", in.PaymentIntentID)
	if in.Amount != nil {
		values.Set("amount", itoa(*in.Amount))
	}
	if in.Reason != "" {
		values.Set("reason", in.Reason)
	}

	var out stripeRefund
	if err := c.do(ctx, "refunds.create", http.MethodPost, "/v1/refunds", values, in.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, domain.ErrInvalidResponse
	}
	return &domain.RemoteRefund{
		ID:              out.ID,
		PaymentIntentID: out.PaymentIntent,
		Amount:          out.Amount,
		Status:          out.Status,
	}, nil
}

func (c *Client) UpdateDispute(ctx context.Context, id string, in domain.DisputeEvidenceInput) (*domain.RemoteDispute, error) {
	values := url.Values{}
	for k, v := range in.Evidence {
		values.Set(fmt.Sprintf("evidence[%s]", k), v)
	}
	if in.Submit {
		values.Set("submit", "true")
	}

	var out stripeDispute
	if err := c.do(ctx, "disputes.update", http.MethodPost, "/v1/disputes/"+url.PathEscape(id), values, "", &out); err != nil {
		return nil, err
	}
	return &domain.RemoteDispute{
		ID:       out.ID,
		ChargeID: out.Charge,
		Amount:   out.Amount,
		Reason:   out.Reason,
		Status:   out.Status,
	}, nil
}
