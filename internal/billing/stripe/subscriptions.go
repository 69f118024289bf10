package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/smallbiznis/cookiejar/internal/billing/domain"
)

type stripeSubscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	CanceledAt        int64             `json:"canceled_at"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			Price            stripePrice `json:"price"`
			CurrentPeriodEnd int64       `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
	// LatestInvoice is an id in webhooks and an object when expanded.
	LatestInvoice json.RawMessage `json:"latest_invoice"`
}

type expandedInvoice struct {
	PaymentIntent *struct {
		ClientSecret string `json:"client_secret"`
	} `json:"payment_intent"`
}

type stripeSubscriptionList struct {
	Data []stripeSubscription `json:"data"`
}

func (s stripeSubscription) toDomain() *domain.RemoteSubscription {
	out := &domain.RemoteSubscription{
		ID:                s.ID,
		CustomerID:        s.Customer,
		Status:            s.Status,
		CurrentPeriodEnd:  unixTime(s.CurrentPeriodEnd),
		CanceledAt:        unixTime(s.CanceledAt),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
	}
	if len(s.Items.Data) > 0 {
		out.PriceID = s.Items.Data[0].Price.ID
		if out.CurrentPeriodEnd == nil {
			out.CurrentPeriodEnd = unixTime(s.Items.Data[0].CurrentPeriodEnd)
		}
	}
	if len(s.LatestInvoice) > 0 && s.LatestInvoice[0] == '{' {
		var invoice expandedInvoice
		if err := json.Unmarshal(s.LatestInvoice, &invoice); err == nil && invoice.PaymentIntent != nil {
			out.ClientSecret = invoice.PaymentIntent.ClientSecret
		}
	}
	return out
}

func (c *Client) CreateSubscription(ctx context.Context, in domain.SubscriptionInput) (*domain.RemoteSubscription, error) {
	values := url.Values{}
	values.Set("customer", in.CustomerID)
	values.Set("items[0][price]", in.PriceID)
	values.Set("payment_behavior", "default_incomplete")
	values.Set("payment_settings[save_default_payment_method]", "on_subscription")
	values.Add("expand[]", "latest_invoice.payment_intent")
	setMetadata(values, "metadata", in.Metadata)

	var out stripeSubscription
	if err := c.do(ctx, "subscriptions.create", http.MethodPost, "/v1/subscriptions", values, in.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, domain.ErrInvalidResponse
	}
	return out.toDomain(), nil
}

func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]domain.RemoteSubscription, error) {
	values := url.Values{}
	values.Set("customer", customerID)
	values.Set("status", "all")
	values.Set("limit", "100")

	var out stripeSubscriptionList
	if err := c.do(ctx, "subscriptions.list", http.MethodGet, "/v1/subscriptions", values, "", &out); err != nil {
		return nil, err
	}
	subs := make([]domain.RemoteSubscription, 0, len(out.Data))
	for _, s := range out.Data {
		subs = append(subs, *s.toDomain())
	}
	return subs, nil
}

func (c *Client) CancelSubscription(ctx context.Context, id string) (*domain.RemoteSubscription, error) {
	var out stripeSubscription
	if err := c.do(ctx, "subscriptions.cancel", http.MethodDelete, "/v1/subscriptions/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}
