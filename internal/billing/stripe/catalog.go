package stripe

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/smallbiznis/cookiejar/internal/billing/domain"
)

type stripeProduct struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Active      bool              `json:"active"`
	Deleted     bool              `json:"deleted"`
	Metadata    map[string]string `json:"metadata"`
}

type stripePrice struct {
	ID         string            `json:"id"`
	Product    string            `json:"product"`
	UnitAmount int64             `json:"unit_amount"`
	Currency   string            `json:"currency"`
	Active     bool              `json:"active"`
	Metadata   map[string]string `json:"metadata"`
}

func (p stripeProduct) toDomain() *domain.RemoteProduct {
	return &domain.RemoteProduct{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Active,
		Deleted:     p.Deleted,
		Metadata:    p.Metadata,
	}
}

func (p stripePrice) toDomain() *domain.RemotePrice {
	return &domain.RemotePrice{
		ID:         p.ID,
		ProductID:  p.Product,
		UnitAmount: p.UnitAmount,
		Currency:   p.Currency,
		Active:     p.Active,
		Metadata:   p.Metadata,
	}
}

func (c *Client) CreateProduct(ctx context.Context, in domain.CreateProductInput) (*domain.RemoteProduct, error) {
	values := url.Values{}
	values.Set("name", in.Name)
	if in.Description != "" {
		values.Set("description", in.Description)
	}
	if in.ImageURL != "" {
		values.Set("images[0]", in.ImageURL)
	}
	values.Set("active", strconv.FormatBool(in.Active))
	setMetadata(values, "metadata", in.Metadata)

	var out stripeProduct
	if err := c.do(ctx, "products.create", http.MethodPost, "/v1/products", values, in.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, domain.ErrInvalidResponse
	}
	return out.toDomain(), nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*domain.RemoteProduct, error) {
	var out stripeProduct
	if err := c.do(ctx, "products.retrieve", http.MethodGet, "/v1/products/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) UpdateProduct(ctx context.Context, id string, in domain.UpdateProductInput) (*domain.RemoteProduct, error) {
	values := url.Values{}
	if in.Name != nil {
		values.Set("name", *in.Name)
	}
	if in.Description != nil {
		values.Set("description", *in.Description)
	}
	if in.ImageURL != nil && strings.TrimSpace(*in.ImageURL) != "" {
		values.Set("images[0]", *in.ImageURL)
	}
	if in.Active != nil {
		values.Set("active", strconv.FormatBool(*in.Active))
	}

	var out stripeProduct
	if err := c.do(ctx, "products.update", http.MethodPost, "/v1/products/"+url.PathEscape(id), values, "", &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) CreatePrice(ctx context.Context, in domain.CreatePriceInput) (*domain.RemotePrice, error) {
	values := url.Values{}
	values.Set("product", in.ProductID)
	values.Set("unit_amount", itoa(in.UnitAmount))
	values.Set("currency", strings.ToLower(in.Currency))
	setMetadata(values, "metadata", in.Metadata)

	var out stripePrice
	if err := c.do(ctx, "prices.create", http.MethodPost, "/v1/prices", values, in.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, domain.ErrInvalidResponse
	}
	return out.toDomain(), nil
}

func (c *Client) GetPrice(ctx context.Context, id string) (*domain.RemotePrice, error) {
	var out stripePrice
	if err := c.do(ctx, "prices.retrieve", http.MethodGet, "/v1/prices/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}
