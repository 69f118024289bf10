// Package billingtest provides an in-memory billing provider for tests.
package billingtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/smallbiznis/cookiejar/internal/billing/domain"
)

// Provider is a concurrency-safe fake of domain.Provider. Calls are counted
// per operation and failures can be injected per operation.
type Provider struct {
	mu sync.Mutex

	seq           int
	products      map[string]*domain.RemoteProduct
	prices        map[string]*domain.RemotePrice
	customers     map[string]*domain.RemoteCustomer
	sessions      map[string]*domain.RemoteCheckoutSession
	lineItems     map[string][]domain.RemoteLineItem
	intents       map[string]*domain.RemotePaymentIntent
	refunds       []domain.RefundInput
	disputes      map[string]*domain.RemoteDispute
	subscriptions map[string]*domain.RemoteSubscription
	idempotent    map[string]any

	calls    map[string]int
	failures map[string]error

	// LastSession records the most recent checkout session request.
	LastSession *domain.CheckoutSessionInput
}

func New() *Provider {
	return &Provider{
		products:      map[string]*domain.RemoteProduct{},
		prices:        map[string]*domain.RemotePrice{},
		customers:     map[string]*domain.RemoteCustomer{},
		sessions:      map[string]*domain.RemoteCheckoutSession{},
		lineItems:     map[string][]domain.RemoteLineItem{},
		intents:       map[string]*domain.RemotePaymentIntent{},
		disputes:      map[string]*domain.RemoteDispute{},
		subscriptions: map[string]*domain.RemoteSubscription{},
		idempotent:    map[string]any{},
		calls:         map[string]int{},
		failures:      map[string]error{},
	}
}

func (p *Provider) Name() string { return "fake" }

// Fail makes every subsequent call to op return err until cleared with a nil err.
func (p *Provider) Fail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// Calls returns how many times op was invoked.
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// Refunds returns the refund requests received so far.
func (p *Provider) Refunds() []domain.RefundInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.RefundInput(nil), p.refunds...)
}

// DeleteProduct simulates a product removed on the provider side.
func (p *Provider) DeleteProduct(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.products, id)
}

// SeedCustomer registers a customer that exists only remotely.
func (p *Provider) SeedCustomer(c domain.RemoteCustomer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := c
	p.customers[c.ID] = &cp
}

// SeedLineItems sets the line items reported for a checkout session.
func (p *Provider) SeedLineItems(sessionID string, items []domain.RemoteLineItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lineItems[sessionID] = items
}

// Product returns a copy of the stored remote product.
func (p *Provider) Product(id string) (domain.RemoteProduct, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prod, ok := p.products[id]
	if !ok {
		return domain.RemoteProduct{}, false
	}
	return *prod, true
}

func (p *Provider) begin(op string) error {
	p.calls[op]++
	if err, ok := p.failures[op]; ok {
		return err
	}
	return nil
}

func (p *Provider) nextID(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_%d", prefix, p.seq)
}

func notFound(op, id string) error {
	return &domain.ProviderError{
		Operation:  op,
		StatusCode: 404,
		Code:       "resource_missing",
		Message:    "No such resource: " + id,
	}
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (p *Provider) CreateProduct(ctx context.Context, in domain.CreateProductInput) (*domain.RemoteProduct, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("products.create"); err != nil {
		return nil, err
	}
	if v, ok := p.idempotent[in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		prod := *v.(*domain.RemoteProduct)
		return &prod, nil
	}
	prod := &domain.RemoteProduct{
		ID:          p.nextID("prod"),
		Name:        in.Name,
		Description: in.Description,
		Active:      in.Active,
		Metadata:    copyMap(in.Metadata),
	}
	p.products[prod.ID] = prod
	if in.IdempotencyKey != "" {
		p.idempotent[in.IdempotencyKey] = prod
	}
	out := *prod
	return &out, nil
}

func (p *Provider) GetProduct(ctx context.Context, id string) (*domain.RemoteProduct, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("products.retrieve"); err != nil {
		return nil, err
	}
	prod, ok := p.products[id]
	if !ok {
		return nil, notFound("products.retrieve", id)
	}
	out := *prod
	return &out, nil
}

func (p *Provider) UpdateProduct(ctx context.Context, id string, in domain.UpdateProductInput) (*domain.RemoteProduct, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("products.update"); err != nil {
		return nil, err
	}
	prod, ok := p.products[id]
	if !ok {
		return nil, notFound("products.update", id)
	}
	if in.Name != nil {
		prod.Name = *in.Name
	}
	if in.Description != nil {
		prod.Description = *in.Description
	}
	if in.Active != nil {
		prod.Active = *in.Active
	}
	out := *prod
	return &out, nil
}

func (p *Provider) CreatePrice(ctx context.Context, in domain.CreatePriceInput) (*domain.RemotePrice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("prices.create"); err != nil {
		return nil, err
	}
	if v, ok := p.idempotent[in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		price := *v.(*domain.RemotePrice)
		return &price, nil
	}
	if _, ok := p.products[in.ProductID]; !ok {
		return nil, notFound("prices.create", in.ProductID)
	}
	price := &domain.RemotePrice{
		ID:         p.nextID("price"),
		ProductID:  in.ProductID,
		UnitAmount: in.UnitAmount,
		Currency:   strings.ToLower(in.Currency),
		Active:     true,
		Metadata:   copyMap(in.Metadata),
	}
	p.prices[price.ID] = price
	if in.IdempotencyKey != "" {
		p.idempotent[in.IdempotencyKey] = price
	}
	out := *price
	return &out, nil
}

func (p *Provider) GetPrice(ctx context.Context, id string) (*domain.RemotePrice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("prices.retrieve"); err != nil {
		return nil, err
	}
	price, ok := p.prices[id]
	if !ok {
		return nil, notFound("prices.retrieve", id)
	}
	out := *price
	return &out, nil
}

func (p *Provider) FindCustomerByEmail(ctx context.Context, email string) (*domain.RemoteCustomer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("customers.list"); err != nil {
		return nil, err
	}
	for _, c := range p.customers {
		if strings.EqualFold(c.Email, email) {
			out := *c
			return &out, nil
		}
	}
	return nil, nil
}

func (p *Provider) CreateCustomer(ctx context.Context, in domain.CreateCustomerInput) (*domain.RemoteCustomer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("customers.create"); err != nil {
		return nil, err
	}
	if v, ok := p.idempotent[in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		c := *v.(*domain.RemoteCustomer)
		return &c, nil
	}
	c := &domain.RemoteCustomer{
		ID:       p.nextID("cus"),
		Email:    in.Email,
		Name:     in.Name,
		Metadata: copyMap(in.Metadata),
	}
	p.customers[c.ID] = c
	if in.IdempotencyKey != "" {
		p.idempotent[in.IdempotencyKey] = c
	}
	out := *c
	return &out, nil
}

func (p *Provider) CreateCheckoutSession(ctx context.Context, in domain.CheckoutSessionInput) (*domain.RemoteCheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("checkout.sessions.create"); err != nil {
		return nil, err
	}
	var total int64
	items := make([]domain.RemoteLineItem, 0, len(in.LineItems))
	for _, li := range in.LineItems {
		price, ok := p.prices[li.PriceID]
		if !ok {
			return nil, notFound("checkout.sessions.create", li.PriceID)
		}
		total += price.UnitAmount * li.Quantity
		items = append(items, domain.RemoteLineItem{
			PriceID:       price.ID,
			ProductID:     price.ProductID,
			Quantity:      li.Quantity,
			AmountTotal:   price.UnitAmount * li.Quantity,
			PriceMetadata: copyMap(price.Metadata),
		})
	}
	reqCopy := in
	p.LastSession = &reqCopy

	session := &domain.RemoteCheckoutSession{
		ID:            p.nextID("cs"),
		Status:        "open",
		PaymentStatus: "unpaid",
		AmountTotal:   total,
		Currency:      "usd",
		CustomerID:    in.CustomerID,
		CustomerEmail: in.CustomerEmail,
		Metadata:      copyMap(in.Metadata),
	}
	session.URL = "https://checkout.example/" + session.ID
	p.sessions[session.ID] = session
	p.lineItems[session.ID] = items
	out := *session
	return &out, nil
}

func (p *Provider) GetCheckoutSession(ctx context.Context, id string) (*domain.RemoteCheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("checkout.sessions.retrieve"); err != nil {
		return nil, err
	}
	s, ok := p.sessions[id]
	if !ok {
		return nil, notFound("checkout.sessions.retrieve", id)
	}
	out := *s
	return &out, nil
}

// CompleteSession marks a session paid with the given payment intent, as the provider would after payment.
func (p *Provider) CompleteSession(id, paymentIntentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[id]; ok {
		s.Status = "complete"
		s.PaymentStatus = "paid"
		s.PaymentIntentID = paymentIntentID
	}
}

func (p *Provider) ListCheckoutLineItems(ctx context.Context, sessionID string) ([]domain.RemoteLineItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("checkout.sessions.line_items"); err != nil {
		return nil, err
	}
	return append([]domain.RemoteLineItem(nil), p.lineItems[sessionID]...), nil
}

func (p *Provider) CreatePaymentIntent(ctx context.Context, in domain.PaymentIntentInput) (*domain.RemotePaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("payment_intents.create"); err != nil {
		return nil, err
	}
	pi := &domain.RemotePaymentIntent{
		ID:       p.nextID("pi"),
		Amount:   in.Amount,
		Currency: strings.ToLower(in.Currency),
		Status:   "requires_payment_method",
	}
	pi.ClientSecret = pi.ID + "_secret"
	p.intents[pi.ID] = pi
	out := *pi
	return &out, nil
}

func (p *Provider) CreateRefund(ctx context.Context, in domain.RefundInput) (*domain.RemoteRefund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("refunds.create"); err != nil {
		return nil, err
	}
	p.refunds = append(p.refunds, in)
	var amount int64
	if in.Amount != nil {
		amount = *in.Amount
	} else if pi, ok := p.intents[in.PaymentIntentID]; ok {
		amount = pi.Amount
	}
	return &domain.RemoteRefund{
		ID:              p.nextID("re"),
		PaymentIntentID: in.PaymentIntentID,
		Amount:          amount,
		Status:          "succeeded",
	}, nil
}

func (p *Provider) UpdateDispute(ctx context.Context, id string, in domain.DisputeEvidenceInput) (*domain.RemoteDispute, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("disputes.update"); err != nil {
		return nil, err
	}
	d, ok := p.disputes[id]
	if !ok {
		d = &domain.RemoteDispute{ID: id, Status: "needs_response"}
		p.disputes[id] = d
	}
	if in.Submit {
		d.Status = "under_review"
	}
	out := *d
	return &out, nil
}

func (p *Provider) CreateSubscription(ctx context.Context, in domain.SubscriptionInput) (*domain.RemoteSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("subscriptions.create"); err != nil {
		return nil, err
	}
	sub := &domain.RemoteSubscription{
		ID:         p.nextID("sub"),
		CustomerID: in.CustomerID,
		PriceID:    in.PriceID,
		Status:     "incomplete",
		Metadata:   copyMap(in.Metadata),
	}
	sub.ClientSecret = sub.ID + "_secret"
	p.subscriptions[sub.ID] = sub
	out := *sub
	return &out, nil
}

func (p *Provider) ListSubscriptions(ctx context.Context, customerID string) ([]domain.RemoteSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("subscriptions.list"); err != nil {
		return nil, err
	}
	out := []domain.RemoteSubscription{}
	for _, s := range p.subscriptions {
		if s.CustomerID == customerID {
			out = append(out, *s)
		}
	}
	return out, nil
}

// SetSubscriptionStatus changes a remote subscription's status, as the
// provider would after the first invoice is paid.
func (p *Provider) SetSubscriptionStatus(id, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.subscriptions[id]; ok {
		s.Status = status
	}
}

func (p *Provider) CancelSubscription(ctx context.Context, id string) (*domain.RemoteSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("subscriptions.cancel"); err != nil {
		return nil, err
	}
	s, ok := p.subscriptions[id]
	if !ok {
		return nil, notFound("subscriptions.cancel", id)
	}
	s.Status = "canceled"
	out := *s
	return &out, nil
}

var _ domain.Provider = (*Provider)(nil)
