package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/internal/billing/billingtest"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	"github.com/smallbiznis/cookiejar/internal/billing/stripe"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	customerrepo "github.com/smallbiznis/cookiejar/internal/customer/repository"
	customerservice "github.com/smallbiznis/cookiejar/internal/customer/service"
	"github.com/smallbiznis/cookiejar/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/cookiejar/internal/order/domain"
	orderrepo "github.com/smallbiznis/cookiejar/internal/order/repository"
	orderservice "github.com/smallbiznis/cookiejar/internal/order/service"
	productrepo "github.com/smallbiznis/cookiejar/internal/product/repository"
	"github.com/smallbiznis/cookiejar/internal/providers/email"
	"github.com/smallbiznis/cookiejar/internal/providers/events"
	"github.com/smallbiznis/cookiejar/internal/providers/pdf"
	"github.com/smallbiznis/cookiejar/internal/reconcile/domain"
	reconcilerepo "github.com/smallbiznis/cookiejar/internal/reconcile/repository"
	subscriptionrepo "github.com/smallbiznis/cookiejar/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/cookiejar/internal/subscription/service"
	"github.com/smallbiznis/cookiejar/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

type sentMail struct {
	To       []string
	Template string
	Data     map[string]any
}

type mailbox struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *mailbox) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (m *mailbox) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Template: templateName, Data: data})
	return nil
}

func (m *mailbox) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

var _ email.Provider = (*mailbox)(nil)

type fixture struct {
	svc       *Service
	db        *gorm.DB
	orders    orderdomain.Repository
	provider  *billingtest.Provider
	store     *config.StoreConfigHolder
	published *events.Recorder
	mail      *mailbox
	clock     *clock.FakeClock
}

func newFixture(t *testing.T, storeCfg config.StoreConfig) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	clk := clock.NewFakeClock(time.Date(2025, 10, 2, 9, 30, 0, 0, time.UTC))
	cfg := config.Config{Billing: config.BillingProviderConfig{RequestTimeout: time.Second}}
	store := config.NewStaticStoreConfigHolder(storeCfg)
	provider := billingtest.New()
	published := &events.Recorder{}
	mail := &mailbox{}
	orders := orderrepo.Provide()

	orderSvc := orderservice.New(orderservice.Params{
		DB: conn, Log: log, Clock: clk, Config: cfg, Repo: orders,
		Provider: provider, PDF: pdf.New(), Metrics: metrics.NewNoop(), Publisher: published,
	})
	resolver := customerservice.NewResolver(customerservice.ResolverParams{
		DB: conn, Log: log, GenID: node, Clock: clk, Config: cfg,
		Repo: customerrepo.Provide(), Provider: provider, Metrics: metrics.NewNoop(),
	})
	subs := subscriptionservice.NewService(subscriptionservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Config: cfg, Store: store,
		Repo: subscriptionrepo.Provide(), Provider: provider, Resolver: resolver,
	})

	svc := NewService(Params{
		DB:           conn,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Config:       cfg,
		Store:        store,
		Verifier:     stripe.NewWebhookVerifier(webhookSecret, stripe.DefaultTolerance, clk.Now),
		Provider:     provider,
		Repo:         reconcilerepo.Provide(),
		Orders:       orders,
		Transitioner: orderSvc,
		Products:     productrepo.Provide(),
		Resolver:     resolver,
		Mirror:       subs,
		Email:        mail,
		Metrics:      metrics.NewNoop(),
	})

	now := clk.Now()
	require.NoError(t, conn.Exec(
		`INSERT INTO products (id, code, name, base_price, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?)`,
		7, "chocolate-chip", "Chocolate Chip", "3.00", now, now,
		8, "oatmeal", "Oatmeal Raisin", "2.50", now, now,
	).Error)

	return fixture{
		svc: svc, db: conn, orders: orders, provider: provider, store: store,
		published: published, mail: mail, clock: clk,
	}
}

func (f fixture) signed(payload string) http.Header {
	h := http.Header{}
	h.Set("Stripe-Signature", stripe.SignatureHeader(webhookSecret, []byte(payload), f.clock.Now()))
	return h
}

func (f fixture) seedOrder(t *testing.T, id int64, status orderdomain.Status, paymentIntent string) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.orders.Insert(context.Background(), f.db, &orderdomain.Order{
		ID:                    id,
		CustomerName:          "Ada Lovelace",
		CustomerEmail:         "ada@example.com",
		TotalPrice:            decimal.RequireFromString("8.50"),
		RemotePaymentIntentID: &paymentIntent,
		Status:                status,
		CreatedAt:             now,
		UpdatedAt:             now,
	}))
}

func (f fixture) status(t *testing.T, paymentIntent string) orderdomain.Status {
	t.Helper()
	order, err := f.orders.FindByPaymentIntent(context.Background(), f.db, paymentIntent)
	require.NoError(t, err)
	require.NotNil(t, order)
	return order.Status
}

func checkoutPayload(eventID, paymentIntent string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"created": 1759397400,
		"data": {"object": {
			"id": "cs_100",
			"payment_status": "paid",
			"amount_total": 600,
			"currency": "usd",
			"customer": "cus_ext",
			"payment_intent": %q,
			"customer_details": {"email": "Ada@Example.com", "name": "Ada Lovelace"},
			"metadata": {
				"customer_name": "Ada Lovelace",
				"items": "[{\"id\":7,\"name\":\"Chocolate Chip\",\"price\":\"3.00\",\"quantity\":2}]"
			}
		}}
	}`, eventID, paymentIntent)
}

func TestIngestCheckoutCreatesPaidOrder(t *testing.T) {
	f := newFixture(t, config.DefaultStoreConfig())
	ctx := context.Background()
	payload := checkoutPayload("evt_1", "pi_100")

	outcome, err := f.svc.Ingest(ctx, []byte(payload), f.signed(payload))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	order, err := f.orders.FindByPaymentIntent(ctx, f.db, "pi_100")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, orderdomain.StatusPaid, order.Status)
	assert.True(t, decimal.RequireFromString("6.00").Equal(order.TotalPrice))
	assert.Equal(t, "ada@example.com", order.CustomerEmail)
	require.NotNil(t, order.RemoteSessionID)
	assert.Equal(t, "cs_100", *order.RemoteSessionID)

	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM order_items WHERE order_id = ? AND product_id = 7 AND quantity = 2`, 1, order.ID)
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM customers WHERE remote_customer_id = 'cus_ext' AND total_orders = 1`, 1)
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM billing_events WHERE provider_event_id = 'evt_1' AND outcome = 'applied' AND processed_at IS NOT NULL`, 1)

	assert.Equal(t, []string{"order.created"}, f.published.Types())
	sent := f.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"ada@example.com"}, sent[0].To)
	assert.Equal(t, email.TemplateOrderConfirmation, sent[0].Template)
	assert.Equal(t, "6.00", sent[0].Data["total"])
}

func TestIngestIsIdempotent(t *testing.T) {
	f := newFixture(t, config.DefaultStoreConfig())
	ctx := context.Background()
	payload := checkoutPayload("evt_2", "pi_101")

	first, err := f.svc.Ingest(ctx, []byte(payload), f.signed(payload))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, first)

	again, err := f.svc.Ingest(ctx, []byte(payload), f.signed(payload))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, again)

	// A different delivery for the same payment does not create a second order.
	other := checkoutPayload("evt_3", "pi_101")
	outcome, err := f.svc.Ingest(ctx, []byte(other), f.signed(other))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoop, outcome)

	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM orders WHERE remote_payment_intent_id = 'pi_101'`, 1)
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM billing_events`, 2)
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM customers WHERE remote_customer_id = 'cus_ext' AND total_orders = 1`, 1)
	assert.Len(t, f.mail.Sent(), 1)
}

func TestIngestRejectsBadSignature(t *testing.T) {
	f := newFixture(t, config.DefaultStoreConfig())
	payload := checkoutPayload("evt_4", "pi_102")
	headers := http.Header{}
	headers.Set("Stripe-Signature", stripe.SignatureHeader("whsec_other", []byte(payload), f.clock.Now()))

	_, err := f.svc.Ingest(context.Background(), []byte(payload), headers)
	assert.ErrorIs(t, err, billingdomain.ErrInvalidSignature)
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM billing_events`, 0)

	_, err = f.svc.Ingest(context.Background(), nil, headers)
	assert.ErrorIs(t, err, domain.ErrEmptyPayload)
}

func TestIngestMarksUnknownEventsIgnored(t *testing.T) {
	f := newFixture(t, config.DefaultStoreConfig())
	payload := `{"id":"evt_5","type":"product.updated","created":1759397400,"data":{"object":{}}}`

	outcome, err := f.svc.Ingest(context.Background(), []byte(payload), f.signed(payload))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM billing_events WHERE outcome = 'ignored'`, 1)
}

func TestCheckoutFallsBackToRemoteLineItems(t *testing.T) {
	f := newFixture(t, config.DefaultStoreConfig())
	ctx := context.Background()
	f.provider.SeedLineItems("cs_200", []billingdomain.RemoteLineItem{
		{PriceID: "price_a", Quantity: 3, AmountTotal: 750, PriceMetadata: map[string]string{"product_id": "8"}},
		{PriceID: "price_b", Quantity: 1, AmountTotal: 100, PriceMetadata: map[string]string{"product_id": "0"}},
		{PriceID: "price_c", Quantity: 1, AmountTotal: 100, PriceMetadata: map[string]string{"product_id": "999"}},
		{PriceID: "price_d", Quantity: 1, AmountTotal: 100},
	})

	outcome, err := f.svc.Apply(ctx, &billingdomain.Event{
		ID:   "evt_6",
		Kind: billingdomain.EventCheckoutCompleted,
		Checkout: &billingdomain.CheckoutCompleted{
			SessionID:       "cs_200",
			PaymentIntentID: "pi_200",
			CustomerEmail:   "grace@example.com",
			CustomerName:    "Grace",
			AmountTotal:     750,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
	assert.Equal(t, 1, f.provider.Calls("checkout.sessions.line_items"))

	order, err := f.orders.FindByPaymentIntent(ctx, f.db, "pi_200")
	require.NoError(t, err)
	require.NotNil(t, order)
	lines, err := f.orders.ListItems(ctx, f.db, []int64{order.ID})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(8), lines[0].ProductID)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, "2.50", lines[0].Price().StringFixed(2))
}

func TestCheckoutWithoutPaymentIntentIsIgnored(t *testing.T) {
	f := newFixture(t, config.DefaultStoreConfig())
	outcome, err := f.svc.Apply(context.Background(), &billingdomain.Event{
		ID:       "evt_7",
		Kind:     billingdomain.EventCheckoutCompleted,
		Checkout: &billingdomain.CheckoutCompleted{SessionID: "cs_300", PaymentStatus: "unpaid"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM orders`, 0)
}

func paymentEvent(id string, kind billingdomain.EventKind, paymentIntent string) *billingdomain.Event {
	return &billingdomain.Event{
		ID:      id,
		Kind:    kind,
		Payment: &billingdomain.PaymentIntentEvent{PaymentIntentID: paymentIntent},
	}
}

func TestPaymentEventsMoveOnlyPendingOrders(t *testing.T) {
	f := newFixture(t, config.DefaultStoreConfig())
	ctx := context.Background()
	f.seedOrder(t, 300, orderdomain.StatusPending, "pi_300")
	f.seedOrder(t, 301, orderdomain.StatusPending, "pi_301")
	f.seedOrder(t, 302, orderdomain.StatusPaid, "pi_302")

	outcome, err := f.svc.Apply(ctx, paymentEvent("evt_10", billingdomain.EventPaymentSucceeded, "pi_300"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
	assert.Equal(t, orderdomain.StatusPaid, f.status(t, "pi_300"))

	outcome, err = f.svc.Apply(ctx, paymentEvent("evt_11", billingdomain.EventPaymentFailed, "pi_301"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
	assert.Equal(t, orderdomain.StatusCanceled, f.status(t, "pi_301"))

	outcome, err = f.svc.Apply(ctx, paymentEvent("evt_12", billingdomain.EventPaymentFailed, "pi_302"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoop, outcome)
	assert.Equal(t, orderdomain.StatusPaid, f.status(t, "pi_302"))

	outcome, err = f.svc.Apply(ctx, paymentEvent("evt_13", billingdomain.EventPaymentSucceeded, "pi_missing"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnmatched, outcome)

	assert.Equal(t, []string{"order.paid", "order.canceled"}, f.published.Types())
}

func TestRefundedOrderNeverReturnsToPaid(t *testing.T) {
	f := newFixture(t, config.DefaultStoreConfig())
	ctx := context.Background()
	f.seedOrder(t, 400, orderdomain.StatusPaid, "pi_400")

	outcome, err := f.svc.Apply(ctx, &billingdomain.Event{
		ID:     "evt_20",
		Kind:   billingdomain.EventChargeRefunded,
		Refund: &billingdomain.ChargeRefunded{ChargeID: "ch_1", PaymentIntentID: "pi_400", Amount: 850, AmountRefunded: 850, FullyRefunded: true},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
	assert.Equal(t, orderdomain.StatusRefunded, f.status(t, "pi_400"))

	for i, ev := range []*billingdomain.Event{
		paymentEvent("evt_21", billingdomain.EventPaymentSucceeded, "pi_400"),
		{ID: "evt_22", Kind: billingdomain.EventDisputeCreated, Dispute: &billingdomain.DisputeEvent{DisputeID: "dp_1", PaymentIntentID: "pi_400"}},
		{ID: "evt_23", Kind: billingdomain.EventDisputeClosed, Dispute: &billingdomain.DisputeEvent{DisputeID: "dp_1", PaymentIntentID: "pi_400", Status: billingdomain.DisputeStatusWon}},
	} {
		outcome, err := f.svc.Apply(ctx, ev)
		require.NoError(t, err, "event %d", i)
		assert.Equal(t, domain.OutcomeNoop, outcome, "event %d", i)
	}
	assert.Equal(t, orderdomain.StatusRefunded, f.status(t, "pi_400"))
	assert.Equal(t, []string{"order.refunded"}, f.published.Types())
}

func TestPartialRefundsReduceCustomerSpend(t *testing.T) {
	f := newFixture(t, config.DefaultStoreConfig())
	ctx := context.Background()
	payload := checkoutPayload("evt_40", "pi_600")
	_, err := f.svc.Ingest(ctx, []byte(payload), f.signed(payload))
	require.NoError(t, err)
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM customers WHERE remote_customer_id = 'cus_ext' AND total_spent = 6`, 1)

	refunded := func(id string, total int64) *billingdomain.Event {
		return &billingdomain.Event{
			ID:     id,
			Kind:   billingdomain.EventChargeRefunded,
			Refund: &billingdomain.ChargeRefunded{ChargeID: "ch_600", PaymentIntentID: "pi_600", Amount: 600, AmountRefunded: total, FullyRefunded: total == 600},
		}
	}

	outcome, err := f.svc.Apply(ctx, refunded("evt_41", 200))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
	assert.Equal(t, orderdomain.StatusRefunded, f.status(t, "pi_600"))
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM customers WHERE remote_customer_id = 'cus_ext' AND total_spent = 4`, 1)

	outcome, err = f.svc.Apply(ctx, refunded("evt_42", 600))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM customers WHERE remote_customer_id = 'cus_ext' AND total_spent = 0`, 1)

	order, err := f.orders.FindByPaymentIntent(ctx, f.db, "pi_600")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.True(t, decimal.RequireFromString("6.00").Equal(order.RefundedAmount), order.RefundedAmount.String())

	// a redelivered total books nothing twice
	outcome, err = f.svc.Apply(ctx, refunded("evt_43", 600))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoop, outcome)
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM customers WHERE remote_customer_id = 'cus_ext' AND total_spent = 0`, 1)
	assert.Equal(t, []string{"order.created", "order.refunded"}, f.published.Types())
}

func TestDisputeLifecycle(t *testing.T) {
	ctx := context.Background()
	created := func(id, pi string) *billingdomain.Event {
		return &billingdomain.Event{ID: id, Kind: billingdomain.EventDisputeCreated, Dispute: &billingdomain.DisputeEvent{DisputeID: "dp_" + id, PaymentIntentID: pi}}
	}
	closed := func(id, pi, status string) *billingdomain.Event {
		return &billingdomain.Event{ID: id, Kind: billingdomain.EventDisputeClosed, Dispute: &billingdomain.DisputeEvent{DisputeID: "dp_" + id, PaymentIntentID: pi, Status: status, Amount: 850}}
	}

	t.Run("won reverts to paid", func(t *testing.T) {
		f := newFixture(t, config.DefaultStoreConfig())
		f.seedOrder(t, 500, orderdomain.StatusShipped, "pi_500")

		_, err := f.svc.Apply(ctx, created("evt_30", "pi_500"))
		require.NoError(t, err)
		assert.Equal(t, orderdomain.StatusDisputed, f.status(t, "pi_500"))

		outcome, err := f.svc.Apply(ctx, closed("evt_31", "pi_500", billingdomain.DisputeStatusWon))
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeApplied, outcome)
		assert.Equal(t, orderdomain.StatusPaid, f.status(t, "pi_500"))
	})

	t.Run("won kept disputed by policy", func(t *testing.T) {
		cfg := config.DefaultStoreConfig()
		cfg.Dispute.WonPolicy = config.DisputeWonKeepDisputed
		f := newFixture(t, cfg)
		f.seedOrder(t, 501, orderdomain.StatusDisputed, "pi_501")

		outcome, err := f.svc.Apply(ctx, closed("evt_32", "pi_501", billingdomain.DisputeStatusWon))
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeNoop, outcome)
		assert.Equal(t, orderdomain.StatusDisputed, f.status(t, "pi_501"))
	})

	t.Run("lost refunds", func(t *testing.T) {
		f := newFixture(t, config.DefaultStoreConfig())
		f.seedOrder(t, 502, orderdomain.StatusDisputed, "pi_502")

		outcome, err := f.svc.Apply(ctx, closed("evt_33", "pi_502", billingdomain.DisputeStatusLost))
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeApplied, outcome)
		assert.Equal(t, orderdomain.StatusRefunded, f.status(t, "pi_502"))
	})
}

func TestSubscriptionEventsUpdateMirror(t *testing.T) {
	cfg := config.DefaultStoreConfig()
	cfg.Plans[2].PriceID = "price_monthly"
	f := newFixture(t, cfg)

	outcome, err := f.svc.Apply(context.Background(), &billingdomain.Event{
		ID:   "evt_40",
		Kind: billingdomain.EventSubscriptionUpdated,
		Subscription: &billingdomain.SubscriptionEvent{
			SubscriptionID: "sub_9",
			CustomerID:     "cus_9",
			PriceID:        "price_monthly",
			Status:         "active",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
	dbtest.AssertCount(t, f.db, `SELECT COUNT(*) FROM subscriptions WHERE remote_subscription_id = 'sub_9' AND plan = 'monthly' AND status = 'active'`, 1)

	outcome, err = f.svc.Apply(context.Background(), &billingdomain.Event{
		ID:           "evt_41",
		Kind:         billingdomain.EventSubscriptionDeleted,
		Subscription: &billingdomain.SubscriptionEvent{SubscriptionID: "sub_10"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)
}

func TestInvoiceEventsAreLoggedOnly(t *testing.T) {
	f := newFixture(t, config.DefaultStoreConfig())
	outcome, err := f.svc.Apply(context.Background(), &billingdomain.Event{
		ID:      "evt_50",
		Kind:    billingdomain.EventInvoicePaid,
		Invoice: &billingdomain.InvoiceEvent{InvoiceID: "in_1", AmountPaid: 1200},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)

	_, err = f.svc.Apply(context.Background(), &billingdomain.Event{ID: "evt_51", Kind: billingdomain.EventInvoicePaid})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}
