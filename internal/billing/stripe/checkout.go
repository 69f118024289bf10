package stripe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/smallbiznis/cookiejar/internal/billing/domain"
)

type stripeCheckoutSession struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Customer        string            `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	PaymentIntent   string            `json:"payment_intent"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
}

func (s stripeCheckoutSession) toDomain() *domain.RemoteCheckoutSession {
	email := s.CustomerDetails.Email
	if email == "" {
		email = s.CustomerEmail
	}
	return &domain.RemoteCheckoutSession{
		ID:              s.ID,
		URL:             s.URL,
		Status:          s.Status,
		PaymentStatus:   s.PaymentStatus,
		AmountTotal:     s.AmountTotal,
		Currency:        s.Currency,
		CustomerID:      s.Customer,
		CustomerEmail:   email,
		CustomerName:    s.CustomerDetails.Name,
		PaymentIntentID: s.PaymentIntent,
		Metadata:        s.Metadata,
	}
}

type stripeLineItemList struct {
	Data []struct {
		Quantity    int64       `json:"quantity"`
		AmountTotal int64       `json:"amount_total"`
		Price       stripePrice `json:"price"`
	} `json:"data"`
	HasMore bool `json:"has_more"`
}

func (c *Client) CreateCheckoutSession(ctx context.Context, in domain.CheckoutSessionInput) (*domain.RemoteCheckoutSession, error) {
	values := url.Values{}
	mode := in.Mode
	if mode == "" {
		mode = "payment"
	}
	values.Set("mode", mode)
	for i, item := range in.LineItems {
		values.Set(fmt.Sprintf("line_items[%d][price]", i), item.PriceID)
		values.Set(fmt.Sprintf("line_items[%d][quantity]", i), itoa(item.Quantity))
	}
	values.Set("success_url", in.SuccessURL)
	values.Set("cancel_url", in.CancelURL)
	if in.CustomerID != "" {
		values.Set("customer", in.CustomerID)
	} else if in.CustomerEmail != "" {
		values.Set("customer_email", in.CustomerEmail)
	}
	for i, country := range in.ShippingCountries {
		values.Set(fmt.Sprintf("shipping_address_collection[allowed_countries][%d]", i), country)
	}
	if in.AllowPromotionCodes {
		values.Set("allow_promotion_codes", "true")
	}
	setMetadata(values, "metadata", in.Metadata)
	if mode == "payment" {
		setMetadata(values, "payment_intent_data[metadata]", in.Metadata)
	}

	var out stripeCheckoutSession
	if err := c.do(ctx, "checkout.sessions.create", http.MethodPost, "/v1/checkout/sessions", values, in.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, domain.ErrInvalidResponse
	}
	return out.toDomain(), nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*domain.RemoteCheckoutSession, error) {
	var out stripeCheckoutSession
	if err := c.do(ctx, "checkout.sessions.retrieve", http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) ListCheckoutLineItems(ctx context.Context, sessionID string) ([]domain.RemoteLineItem, error) {
	values := url.Values{}
	values.Set("limit", "100")
	values.Add("expand[]", "data.price")

	var out stripeLineItemList
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID) + "/line_items"
	if err := c.do(ctx, "checkout.sessions.line_items", http.MethodGet, path, values, "", &out); err != nil {
		return nil, err
	}

	items := make([]domain.RemoteLineItem, 0, len(out.Data))
	for _, item := range out.Data {
		items = append(items, domain.RemoteLineItem{
			PriceID:       item.Price.ID,
			ProductID:     item.Price.Product,
			Quantity:      item.Quantity,
			AmountTotal:   item.AmountTotal,
			PriceMetadata: item.Price.Metadata,
		})
	}
	return items, nil
}
