package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/internal/billing/billingtest"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	syncservice "github.com/smallbiznis/cookiejar/internal/billingsync/service"
	"github.com/smallbiznis/cookiejar/internal/checkout/domain"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	customerrepo "github.com/smallbiznis/cookiejar/internal/customer/repository"
	customerservice "github.com/smallbiznis/cookiejar/internal/customer/service"
	"github.com/smallbiznis/cookiejar/internal/observability/metrics"
	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	productrepo "github.com/smallbiznis/cookiejar/internal/product/repository"
	"github.com/smallbiznis/cookiejar/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	svc      domain.Service
	provider *billingtest.Provider
	db       *gorm.DB
	products productdomain.Repository
	now      time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	now := time.Date(2025, 8, 14, 15, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	store := config.NewStaticStoreConfigHolder(config.DefaultStoreConfig())
	cfg := config.Config{
		BaseURL: "https://cookies.example",
		Billing: config.BillingProviderConfig{Currency: "usd", RequestTimeout: time.Second},
	}
	provider := billingtest.New()
	products := productrepo.Provide()

	syncSvc := syncservice.New(syncservice.Params{
		DB: conn, Log: log, Clock: clk, Config: cfg, Store: store,
		Provider: provider, ProductRepo: products, Metrics: metrics.NewNoop(),
	})
	resolver := customerservice.NewResolver(customerservice.ResolverParams{
		DB: conn, Log: log, GenID: node, Clock: clk, Config: cfg,
		Repo: customerrepo.Provide(), Provider: provider, Metrics: metrics.NewNoop(),
	})

	svc := New(Params{
		DB: conn, Log: log, Config: cfg, Store: store, Provider: provider,
		ProductRepo: products, Sync: syncSvc, Resolver: resolver, Metrics: metrics.NewNoop(),
	})
	return fixture{svc: svc, provider: provider, db: conn, products: products, now: now}
}

func (f fixture) seedProduct(t *testing.T, id int64, name, price string, available bool) {
	t.Helper()
	err := f.products.Create(context.Background(), f.db, &productdomain.Product{
		ID:          id,
		Code:        name,
		Name:        name,
		BasePrice:   decimal.RequireFromString(price),
		IsAvailable: available,
		Category:    "cookies",
		UnitType:    "individual",
		MinQuantity: 1,
		MaxQuantity: 24,
		CreatedAt:   f.now,
		UpdatedAt:   f.now,
	})
	require.NoError(t, err)
}

var ada = domain.CustomerInfo{Name: "Ada Lovelace", Email: "Ada@Example.com"}

func TestCheckoutSyncsUnsyncedProductOnDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct(t, 7, "chocolate-chip", "3.00", true)

	result, err := f.svc.CreateCheckoutSession(ctx, []domain.CartItem{{ProductID: "7", Quantity: 2}}, ada)
	require.NoError(t, err)
	assert.Equal(t, "6.00", result.AmountTotal)
	assert.Equal(t, "usd", result.Currency)
	assert.NotEmpty(t, result.URL)
	assert.NotEmpty(t, result.RemoteCustomerID)

	product, err := f.products.FindByID(ctx, f.db, 7)
	require.NoError(t, err)
	require.True(t, product.IsSynced())
	assert.Equal(t, 1, f.provider.Calls("products.create"))

	session := f.provider.LastSession
	require.NotNil(t, session)
	require.Len(t, session.LineItems, 1)
	assert.Equal(t, *product.RemotePriceID, session.LineItems[0].PriceID)
	assert.Equal(t, int64(2), session.LineItems[0].Quantity)
	assert.Equal(t, "payment", session.Mode)
	assert.Equal(t, result.RemoteCustomerID, session.CustomerID)
	assert.Empty(t, session.CustomerEmail)
	assert.Equal(t, "https://cookies.example/checkout/success?session_id={CHECKOUT_SESSION_ID}", session.SuccessURL)
	assert.Equal(t, "https://cookies.example/checkout/canceled", session.CancelURL)
	assert.Equal(t, []string{"US"}, session.ShippingCountries)
	assert.True(t, session.AllowPromotionCodes)

	assert.Equal(t, "Ada Lovelace", session.Metadata[domain.MetadataCustomerName])
	assert.Equal(t, result.RemoteCustomerID, session.Metadata[domain.MetadataCustomerID])
	items, err := domain.DecodeItems(session.Metadata[domain.MetadataItems])
	require.NoError(t, err)
	assert.Equal(t, []domain.MetadataItem{{ID: 7, Name: "chocolate-chip", Price: "3.00", Quantity: 2}}, items)
}

func TestCheckoutReusesSyncedPriceAndCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct(t, 7, "chocolate-chip", "3.00", true)

	first, err := f.svc.CreateCheckoutSession(ctx, []domain.CartItem{{ProductID: "7", Quantity: 1}}, ada)
	require.NoError(t, err)
	second, err := f.svc.CreateCheckoutSession(ctx, []domain.CartItem{{ProductID: "7", Quantity: 3}}, ada)
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.RemoteCustomerID, second.RemoteCustomerID)
	assert.Equal(t, 1, f.provider.Calls("products.create"))
	assert.Equal(t, 1, f.provider.Calls("prices.create"))
	assert.Equal(t, 1, f.provider.Calls("customers.create"))
	assert.Equal(t, "9.00", second.AmountTotal)
}

func TestCheckoutMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 7, "chocolate-chip", "3.00", true)
	f.seedProduct(t, 8, "oatmeal", "2.50", true)

	_, err := f.svc.CreateCheckoutSession(context.Background(), []domain.CartItem{
		{ProductID: "7", Quantity: 1},
		{ProductID: "8", Quantity: 2},
		{ProductID: "7", Quantity: 2},
	}, ada)
	require.NoError(t, err)

	lines := f.provider.LastSession.LineItems
	require.Len(t, lines, 2)
	assert.Equal(t, int64(3), lines[0].Quantity)
	assert.Equal(t, int64(2), lines[1].Quantity)
}

func TestCheckoutRejectsBeforeAnyRemoteCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct(t, 7, "chocolate-chip", "3.00", true)
	f.seedProduct(t, 9, "retired", "3.00", false)

	cases := []struct {
		name  string
		items []domain.CartItem
		info  domain.CustomerInfo
		want  error
	}{
		{"empty cart", nil, ada, domain.ErrEmptyCart},
		{"zero quantity", []domain.CartItem{{ProductID: "7", Quantity: 0}}, ada, domain.ErrInvalidItem},
		{"above max", []domain.CartItem{{ProductID: "7", Quantity: 25}}, ada, domain.ErrInvalidQuantity},
		{"bad product id", []domain.CartItem{{ProductID: "abc", Quantity: 1}}, ada, domain.ErrInvalidItem},
		{"unknown product", []domain.CartItem{{ProductID: "42", Quantity: 1}}, ada, domain.ErrProductNotFound},
		{"unavailable", []domain.CartItem{{ProductID: "9", Quantity: 1}}, ada, domain.ErrProductUnavailable},
		{"bad email", []domain.CartItem{{ProductID: "7", Quantity: 1}}, domain.CustomerInfo{Name: "Ada", Email: "nope"}, domain.ErrInvalidCustomer},
		{"missing name", []domain.CartItem{{ProductID: "7", Quantity: 1}}, domain.CustomerInfo{Email: "ada@example.com"}, domain.ErrInvalidCustomer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateCheckoutSession(ctx, tc.items, tc.info)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	assert.Zero(t, f.provider.Calls("products.create"))
	assert.Zero(t, f.provider.Calls("customers.list"))
	assert.Zero(t, f.provider.Calls("checkout.sessions.create"))
}

func TestCheckoutValidationErrorNamesFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateCheckoutSession(context.Background(),
		[]domain.CartItem{{ProductID: "7", Quantity: 1}},
		domain.CustomerInfo{Name: "Ada", Email: "not-an-email"})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Fields["customer.email"])
}

func TestCheckoutSurfacesProviderErrors(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 7, "chocolate-chip", "3.00", true)
	f.provider.Fail("checkout.sessions.create", &billingdomain.ProviderError{Operation: "checkout.sessions.create", StatusCode: 500})

	_, err := f.svc.CreateCheckoutSession(context.Background(), []domain.CartItem{{ProductID: "7", Quantity: 1}}, ada)
	require.Error(t, err)
	assert.True(t, billingdomain.IsProviderError(err))
}

func TestCreatePaymentIntentUsesSessionQuote(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, 7, "chocolate-chip", "3.00", true)

	result, err := f.svc.CreatePaymentIntent(context.Background(), []domain.CartItem{{ProductID: "7", Quantity: 4}}, ada)
	require.NoError(t, err)
	assert.Equal(t, "12.00", result.Amount)
	assert.Equal(t, "usd", result.Currency)
	assert.NotEmpty(t, result.ClientSecret)
	assert.Equal(t, 1, f.provider.Calls("checkout.sessions.create"))
	assert.Equal(t, 1, f.provider.Calls("payment_intents.create"))
}

func TestVerifySession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProduct(t, 7, "chocolate-chip", "3.00", true)

	created, err := f.svc.CreateCheckoutSession(ctx, []domain.CartItem{{ProductID: "7", Quantity: 2}}, ada)
	require.NoError(t, err)
	f.provider.CompleteSession(created.SessionID, "pi_live")

	status, err := f.svc.VerifySession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "paid", status.PaymentStatus)
	assert.Equal(t, "complete", status.Status)
	assert.Equal(t, "6.00", status.AmountTotal)
	assert.Equal(t, "pi_live", status.PaymentIntentID)
	assert.Equal(t, "Ada Lovelace", status.CustomerName)

	_, err = f.svc.VerifySession(ctx, "cs_missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.svc.VerifySession(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}

func TestEncodeItemsDropsOversizedCarts(t *testing.T) {
	items := make([]domain.MetadataItem, 40)
	for i := range items {
		items[i] = domain.MetadataItem{ID: int64(i + 1), Name: "extra long cookie name", Price: "3.00", Quantity: 1}
	}
	assert.Empty(t, domain.EncodeItems(items))
	assert.NotEmpty(t, domain.EncodeItems(items[:2]))
}
