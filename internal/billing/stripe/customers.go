package stripe

import (
	"context"
	"net/http"
	"net/url"

	"github.com/smallbiznis/cookiejar/internal/billing/domain"
)

type stripeCustomer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

type stripeCustomerList struct {
	Data []stripeCustomer `json:"data"`
}

func (s stripeCustomer) toDomain() *domain.RemoteCustomer {
	return &domain.RemoteCustomer{ID: s.ID, Email: s.Email, Name: s.Name, Metadata: s.Metadata}
}

// FindCustomerByEmail returns nil, nil when the provider has no customer with that email.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*domain.RemoteCustomer, error) {
	values := url.Values{}
	values.Set("email", email)
	values.Set("limit", "1")

	var out stripeCustomerList
	if err := c.do(ctx, "customers.list", http.MethodGet, "/v1/customers", values, "", &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	return out.Data[0].toDomain(), nil
}

func (c *Client) CreateCustomer(ctx context.Context, in domain.CreateCustomerInput) (*domain.RemoteCustomer, error) {
	values := url.Values{}
	values.Set("email", in.Email)
	if in.Name != "" {
		values.Set("name", in.Name)
	}
	setMetadata(values, "metadata", in.Metadata)

	var out stripeCustomer
	if err := c.do(ctx, "customers.create", http.MethodPost, "/v1/customers", values, in.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, domain.ErrInvalidResponse
	}
	return out.toDomain(), nil
}
