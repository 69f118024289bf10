package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/internal/billing/billingtest"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	"github.com/smallbiznis/cookiejar/internal/billingsync/domain"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	"github.com/smallbiznis/cookiejar/internal/observability/metrics"
	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	productrepo "github.com/smallbiznis/cookiejar/internal/product/repository"
	"github.com/smallbiznis/cookiejar/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// flakyProvider fails product creation for one product name.
type flakyProvider struct {
	*billingtest.Provider
	failName string
}

func (p *flakyProvider) CreateProduct(ctx context.Context, in billingdomain.CreateProductInput) (*billingdomain.RemoteProduct, error) {
	if in.Name == p.failName {
		return nil, &billingdomain.ProviderError{Operation: "products.create", StatusCode: 500, Message: "boom"}
	}
	return p.Provider.CreateProduct(ctx, in)
}

type recordingReporter struct {
	runs []domain.RunSummary
}

func (r *recordingReporter) ReportRun(_ context.Context, run domain.RunSummary) error {
	r.runs = append(r.runs, run)
	return nil
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	provider *billingtest.Provider
	products productdomain.Repository
	reporter *recordingReporter
	node     *snowflake.Node
	now      time.Time
}

func newFixture(t *testing.T, provider billingdomain.Provider, fake *billingtest.Provider) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	store := config.DefaultStoreConfig()
	store.Sync.BatchPause = time.Millisecond
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reporter := &recordingReporter{}
	products := productrepo.Provide()

	svc := New(Params{
		DB:          conn,
		Log:         zaptest.NewLogger(t),
		Clock:       clock.NewFakeClock(now),
		Config:      config.Config{Billing: config.BillingProviderConfig{Currency: "USD", RequestTimeout: time.Second}},
		Store:       config.NewStaticStoreConfigHolder(store),
		Provider:    provider,
		ProductRepo: products,
		Metrics:     metrics.NewNoop(),
		Reporter:    reporter,
	}).(*Service)

	return fixture{svc: svc, db: conn, provider: fake, products: products, reporter: reporter, node: node, now: now}
}

func (f fixture) addProduct(t *testing.T, name, price string) *productdomain.Product {
	t.Helper()
	p := &productdomain.Product{
		ID:          f.node.Generate().Int64(),
		Code:        fmt.Sprintf("code-%d", f.node.Generate().Int64()),
		Name:        name,
		BasePrice:   decimal.RequireFromString(price),
		IsAvailable: true,
		Category:    "cookies",
		UnitType:    "individual",
		MinQuantity: 1,
		MaxQuantity: 100,
		CreatedAt:   f.now,
		UpdatedAt:   f.now,
	}
	require.NoError(t, f.products.Create(context.Background(), f.db, p))
	return p
}

func (f fixture) reload(t *testing.T, id int64) *productdomain.Product {
	t.Helper()
	p, err := f.products.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestSyncProductIsIdempotent(t *testing.T) {
	fake := billingtest.New()
	f := newFixture(t, fake, fake)
	ctx := context.Background()
	p := f.addProduct(t, "Chocolate Chip", "3.00")

	first, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCreated, first.Action)

	second, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSkipped, second.Action)
	assert.Equal(t, first.RemoteProductID, second.RemoteProductID)
	assert.Equal(t, first.RemotePriceID, second.RemotePriceID)

	assert.Equal(t, 1, fake.Calls("products.create"))
	assert.Equal(t, 1, fake.Calls("prices.create"))

	stored := f.reload(t, p.ID)
	require.True(t, stored.IsSynced())
	assert.NotNil(t, stored.RemoteSyncedAt)

	remote, ok := fake.Product(first.RemoteProductID)
	require.True(t, ok)
	assert.Equal(t, fmt.Sprint(p.ID), remote.Metadata["product_id"])
}

func TestSyncProductSkipExisting(t *testing.T) {
	fake := billingtest.New()
	f := newFixture(t, fake, fake)
	ctx := context.Background()
	p := f.addProduct(t, "Oatmeal", "2.50")

	_, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{})
	require.NoError(t, err)

	res, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{SkipExisting: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSkipped, res.Action)
	assert.Zero(t, fake.Calls("products.retrieve"))
}

func TestPriceChangeRollsNewPriceKeepsProduct(t *testing.T) {
	fake := billingtest.New()
	f := newFixture(t, fake, fake)
	ctx := context.Background()
	p := f.addProduct(t, "Snickerdoodle", "3.00")

	first, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{})
	require.NoError(t, err)

	require.NoError(t, f.db.Exec(`UPDATE products SET base_price = ? WHERE id = ?`, decimal.RequireFromString("3.50"), p.ID).Error)

	second, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{ForceUpdate: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionUpdated, second.Action)
	assert.Equal(t, first.RemoteProductID, second.RemoteProductID)
	assert.NotEqual(t, first.RemotePriceID, second.RemotePriceID)

	price, err := fake.GetPrice(ctx, second.RemotePriceID)
	require.NoError(t, err)
	assert.Equal(t, int64(350), price.UnitAmount)
	assert.Equal(t, "usd", price.Currency)

	stored := f.reload(t, p.ID)
	assert.Equal(t, second.RemotePriceID, *stored.RemotePriceID)
}

func TestSyncRecreatesDeletedRemoteProduct(t *testing.T) {
	fake := billingtest.New()
	f := newFixture(t, fake, fake)
	ctx := context.Background()
	p := f.addProduct(t, "Ginger", "2.00")

	first, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{})
	require.NoError(t, err)
	fake.DeleteProduct(first.RemoteProductID)

	second, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCreated, second.Action)
	assert.NotEqual(t, first.RemoteProductID, second.RemoteProductID)
}

func TestSyncAllProductsIsolatesFailures(t *testing.T) {
	fake := billingtest.New()
	flaky := &flakyProvider{Provider: fake, failName: "Broken"}
	f := newFixture(t, flaky, fake)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		f.addProduct(t, fmt.Sprintf("Cookie %d", i), "2.00")
	}
	broken := f.addProduct(t, "Broken", "2.00")

	results, err := f.svc.SyncAllProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 7)
	for _, r := range results {
		assert.Equal(t, domain.ActionCreated, r.Action)
		assert.NotEqual(t, snowflake.ID(broken.ID).String(), r.ProductID)
	}

	stored := f.reload(t, broken.ID)
	assert.Nil(t, stored.RemoteProductID)

	require.Len(t, f.reporter.runs, 1)
	assert.Equal(t, 8, f.reporter.runs[0].Total)
	assert.Equal(t, 1, f.reporter.runs[0].Failed)
	assert.Equal(t, 7, f.reporter.runs[0].Created)
}

func TestSyncUnsyncedProductsOnlyTouchesUnsynced(t *testing.T) {
	fake := billingtest.New()
	f := newFixture(t, fake, fake)
	ctx := context.Background()

	synced := f.addProduct(t, "Synced", "2.00")
	_, err := f.svc.SyncProduct(ctx, synced.ID, domain.SyncOptions{})
	require.NoError(t, err)
	f.addProduct(t, "Fresh", "2.00")

	results, err := f.svc.SyncUnsyncedProducts(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.ActionCreated, results[0].Action)
	assert.Equal(t, 2, fake.Calls("products.create"))
}

func TestEnsurePriceReturnsStoredPriceWhenCurrent(t *testing.T) {
	fake := billingtest.New()
	f := newFixture(t, fake, fake)
	ctx := context.Background()
	p := f.addProduct(t, "Lemon", "3.00")

	priceID, err := f.svc.EnsurePrice(ctx, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, priceID)

	again, err := f.svc.EnsurePrice(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, priceID, again)
	assert.Equal(t, 1, fake.Calls("prices.create"))
}

func TestSyncProviderErrorLeavesProductUnsynced(t *testing.T) {
	fake := billingtest.New()
	f := newFixture(t, fake, fake)
	ctx := context.Background()
	p := f.addProduct(t, "Pecan", "3.00")

	fake.Fail("prices.create", &billingdomain.ProviderError{Operation: "prices.create", StatusCode: 502})
	_, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{})
	require.Error(t, err)
	assert.True(t, billingdomain.IsProviderError(err))
	assert.Nil(t, f.reload(t, p.ID).RemotePriceID)

	fake.Fail("prices.create", nil)
	res, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCreated, res.Action)
	// The retried product create replays through its idempotency key.
	assert.Equal(t, "prod_1", res.RemoteProductID)
}

func TestArchiveProductDeactivatesRemote(t *testing.T) {
	fake := billingtest.New()
	f := newFixture(t, fake, fake)
	ctx := context.Background()
	p := f.addProduct(t, "Raisin", "2.00")

	res, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{})
	require.NoError(t, err)

	require.NoError(t, f.svc.ArchiveProduct(ctx, p.ID))
	remote, ok := fake.Product(res.RemoteProductID)
	require.True(t, ok)
	assert.False(t, remote.Active)
	assert.False(t, f.reload(t, p.ID).IsAvailable)
}

func TestPushProductUpdatesRemoteFields(t *testing.T) {
	fake := billingtest.New()
	f := newFixture(t, fake, fake)
	ctx := context.Background()
	p := f.addProduct(t, "Shortbread", "2.00")

	res, err := f.svc.SyncProduct(ctx, p.ID, domain.SyncOptions{})
	require.NoError(t, err)

	require.NoError(t, f.db.Exec(`UPDATE products SET name = ? WHERE id = ?`, "Butter Shortbread", p.ID).Error)
	pushed, err := f.svc.PushProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionUpdated, pushed.Action)
	assert.Equal(t, res.RemotePriceID, pushed.RemotePriceID)

	remote, _ := fake.Product(res.RemoteProductID)
	assert.Equal(t, "Butter Shortbread", remote.Name)
}

func TestSyncUnknownProduct(t *testing.T) {
	fake := billingtest.New()
	f := newFixture(t, fake, fake)
	_, err := f.svc.SyncProduct(context.Background(), 404, domain.SyncOptions{})
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}
