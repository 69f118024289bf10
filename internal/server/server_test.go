package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditrepo "github.com/smallbiznis/cookiejar/internal/audit/repository"
	auditservice "github.com/smallbiznis/cookiejar/internal/audit/service"
	authdomain "github.com/smallbiznis/cookiejar/internal/auth/domain"
	authrepo "github.com/smallbiznis/cookiejar/internal/auth/repository"
	authservice "github.com/smallbiznis/cookiejar/internal/auth/service"
	"github.com/smallbiznis/cookiejar/internal/authorization"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/cookiejar/internal/catalog/domain"
	checkoutdomain "github.com/smallbiznis/cookiejar/internal/checkout/domain"
	"github.com/smallbiznis/cookiejar/internal/clock"
	orderdomain "github.com/smallbiznis/cookiejar/internal/order/domain"
	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	reconciledomain "github.com/smallbiznis/cookiejar/internal/reconcile/domain"
	reportingdomain "github.com/smallbiznis/cookiejar/internal/reporting/domain"
	"github.com/smallbiznis/cookiejar/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeCatalog struct {
	products map[string]catalogdomain.ProductDetail
}

func (f *fakeCatalog) ListProducts(ctx context.Context, req productdomain.ListRequest) ([]catalogdomain.ProductDetail, error) {
	out := []catalogdomain.ProductDetail{}
	for _, p := range f.products {
		if req.Available != nil && p.IsAvailable != *req.Available {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeCatalog) GetProduct(ctx context.Context, id string) (*catalogdomain.ProductDetail, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, productdomain.ErrNotFound
	}
	return &p, nil
}

func (f *fakeCatalog) CreateProduct(ctx context.Context, req productdomain.CreateRequest) (*catalogdomain.ProductDetail, error) {
	return nil, productdomain.ErrCodeAlreadyExists
}

func (f *fakeCatalog) UpdateProduct(ctx context.Context, req productdomain.UpdateRequest) (*catalogdomain.ProductDetail, error) {
	return f.GetProduct(ctx, req.ID)
}

func (f *fakeCatalog) SetAvailability(ctx context.Context, id string, available bool) (*catalogdomain.ProductDetail, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, productdomain.ErrNotFound
	}
	p.IsAvailable = available
	f.products[id] = p
	return &p, nil
}

func (f *fakeCatalog) BulkSetAvailability(ctx context.Context, ids []string, available bool) (catalogdomain.BulkAvailabilityResult, error) {
	return catalogdomain.BulkAvailabilityResult{}, nil
}

type fakeCheckout struct {
	err error
}

func (f *fakeCheckout) CreateCheckoutSession(ctx context.Context, items []checkoutdomain.CartItem, info checkoutdomain.CustomerInfo) (*checkoutdomain.SessionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &checkoutdomain.SessionResult{SessionID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
}

func (f *fakeCheckout) CreatePaymentIntent(ctx context.Context, items []checkoutdomain.CartItem, info checkoutdomain.CustomerInfo) (*checkoutdomain.PaymentIntentResult, error) {
	return nil, f.err
}

func (f *fakeCheckout) VerifySession(ctx context.Context, sessionID string) (*checkoutdomain.SessionStatus, error) {
	return nil, checkoutdomain.ErrSessionNotFound
}

type fakeReconcile struct {
	outcome reconciledomain.Outcome
	err     error
	calls   int
}

func (f *fakeReconcile) Ingest(ctx context.Context, payload []byte, headers http.Header) (reconciledomain.Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

func (f *fakeReconcile) Apply(ctx context.Context, event *billingdomain.Event) (reconciledomain.Outcome, error) {
	return f.outcome, f.err
}

type fakeReporting struct{}

func (fakeReporting) Stats(ctx context.Context) (reportingdomain.Stats, error) {
	return reportingdomain.Stats{TotalRevenue: "42.00", TotalOrders: 3}, nil
}

func (fakeReporting) RevenueByProduct(ctx context.Context) ([]reportingdomain.ProductRevenue, error) {
	return nil, nil
}

func (fakeReporting) TopSellers(ctx context.Context, limit int) ([]reportingdomain.ProductRevenue, error) {
	return []reportingdomain.ProductRevenue{}, nil
}

func (fakeReporting) RecentOrders(ctx context.Context, limit int) ([]reportingdomain.RecentOrder, error) {
	return nil, nil
}

func (fakeReporting) ProductSales(ctx context.Context, since time.Time) ([]reportingdomain.ProductSale, error) {
	return nil, nil
}

type testEnv struct {
	db        *gorm.DB
	engine    *gin.Engine
	catalog   *fakeCatalog
	checkout  *fakeCheckout
	reconcile *fakeReconcile
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)

	clk := clock.NewFakeClock(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC))
	authSvc := authservice.NewService(authservice.Params{
		Log:   log,
		Repo:  authrepo.New(conn),
		GenID: node,
		Clock: clk,
	})
	ctx := context.Background()
	_, err = authSvc.CreateAdmin(ctx, authdomain.CreateAdminRequest{Email: "owner@example.com", Password: "owner-secret", Role: authdomain.RoleOwner})
	require.NoError(t, err)
	_, err = authSvc.CreateAdmin(ctx, authdomain.CreateAdminRequest{Email: "staff@example.com", Password: "staff-secret", Role: authdomain.RoleStaff})
	require.NoError(t, err)

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)

	env := &testEnv{
		db:     conn,
		engine: gin.New(),
		catalog: &fakeCatalog{products: map[string]catalogdomain.ProductDetail{
			"7": {Response: productdomain.Response{ID: "7", Name: "Chocolate Chip", BasePrice: "3.00", IsAvailable: true}},
			"8": {Response: productdomain.Response{ID: "8", Name: "Retired Snickerdoodle", BasePrice: "2.00", IsAvailable: false}},
		}},
		checkout:  &fakeCheckout{},
		reconcile: &fakeReconcile{outcome: reconciledomain.OutcomeApplied},
	}
	env.engine.Use(ErrorHandlingMiddleware())

	NewServer(ServerParams{
		Gin:          env.engine,
		Log:          log,
		AuthSvc:      authSvc,
		AuthzSvc:     authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		CatalogSvc:   env.catalog,
		CheckoutSvc:  env.checkout,
		ReconcileSvc: env.reconcile,
		ReportingSvc: fakeReporting{},
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    conn,
			Log:   log,
			GenID: node,
			Clock: clk,
			Repo:  auditrepo.Provide(),
		}),
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, setup func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if setup != nil {
		setup(req)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func basicAuth(user, pass string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(user, pass) }
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestStorefrontHidesUnavailableProducts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/products/7", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/products/8", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []catalogdomain.ProductDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "7", list.Data[0].ID)
}

func TestAdminRequiresBasicAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/admin/stats", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	rec = env.do(t, http.MethodGet, "/admin/stats", nil, basicAuth("owner@example.com", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/stats", nil, basicAuth("owner@example.com", "owner-secret"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_revenue":"42.00"`)
}

func TestAdminRoutesEnforceRoles(t *testing.T) {
	env := newTestEnv(t)
	staff := basicAuth("staff@example.com", "staff-secret")

	rec := env.do(t, http.MethodGet, "/admin/reports/top-sellers", nil, staff)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/orders/1/refund", nil, staff)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/billing/sync", nil, staff)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/inventory/availability",
		map[string]any{"product_id": "7", "is_available": false}, staff)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.catalog.products["7"].IsAvailable)
}

func TestAdminMutationsAreAudited(t *testing.T) {
	env := newTestEnv(t)
	owner := basicAuth("owner@example.com", "owner-secret")
	staff := basicAuth("staff@example.com", "staff-secret")

	rec := env.do(t, http.MethodPost, "/admin/products/7/archive", nil, staff)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, http.MethodPost, "/admin/products/404/archive", nil, owner)
	require.Equal(t, http.StatusNotFound, rec.Code)
	dbtest.AssertCount(t, env.db, "SELECT COUNT(*) FROM audit_logs", 0)

	rec = env.do(t, http.MethodPost, "/admin/products/7/archive", nil, owner)
	require.Equal(t, http.StatusOK, rec.Code)
	dbtest.AssertCount(t, env.db, "SELECT COUNT(*) FROM audit_logs WHERE action = ? AND target_type = ? AND target_id = ? AND actor_type = ?", 1,
		"product.archive", "product", "7", "admin")

	rec = env.do(t, http.MethodGet, "/admin/audit-logs", nil, staff)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/audit-logs?target_type=product", nil, owner)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"action":"product.archive"`)
}

func TestCheckoutValidationErrorsListFields(t *testing.T) {
	env := newTestEnv(t)
	env.checkout.err = &checkoutdomain.ValidationError{
		Err: checkoutdomain.ErrInvalidCustomer,
		Fields: map[string]string{
			"customer.email": "email",
			"customer.name":  "required",
		},
	}

	rec := env.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"items":    []map[string]any{{"product_id": "7", "quantity": 2}},
		"customer": map[string]any{"email": "nope"},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 2)
	assert.Equal(t, "customer.email", payload.Errors[0].Field)
	assert.Equal(t, "invalid_customer", payload.Errors[0].Code)
}

func TestCheckoutMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout", []byte("{"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Errors[0].Code)
}

func TestCheckoutProviderFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.checkout.err = &billingdomain.ProviderError{
		Operation:  "checkout.sessions.create",
		StatusCode: http.StatusServiceUnavailable,
		Message:    "upstream unavailable",
	}

	rec := env.do(t, http.MethodPost, "/api/checkout", map[string]any{}, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "provider_error", payload.Type)
	assert.Equal(t, "upstream unavailable", payload.Message)
}

func TestBillingWebhook(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/webhooks/billing", []byte(`{"id":"evt_1"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"outcome":"applied"}`, rec.Body.String())

	env.reconcile.err = billingdomain.ErrInvalidSignature
	rec = env.do(t, http.MethodPost, "/api/webhooks/billing", []byte(`{"id":"evt_2"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_signature", decodeError(t, rec).Errors[0].Code)
	assert.Equal(t, 2, env.reconcile.calls)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"order transition", orderdomain.ErrInvalidTransition, http.StatusConflict},
		{"wrapped not found", errors.Join(errors.New("load"), orderdomain.ErrNotFound), http.StatusNotFound},
		{"duplicate code", productdomain.ErrCodeAlreadyExists, http.StatusConflict},
		{"session missing", checkoutdomain.ErrSessionNotFound, http.StatusNotFound},
		{"unavailable product", checkoutdomain.ErrProductUnavailable, http.StatusBadRequest},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := mapError(tc.err)
			assert.Equal(t, tc.status, status)
		})
	}
}
