package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func seed(t *testing.T, conn *gorm.DB, now time.Time) {
	t.Helper()
	old := now.AddDate(0, 0, -45)
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO products (id, code, name, base_price, is_featured, created_at, updated_at) VALUES
			(7, 'chocolate-chip', 'Chocolate Chip', '3.00', 1, ?, ?),
			(8, 'oatmeal', 'Oatmeal Raisin', '2.50', 0, ?, ?)`, []any{now, now, now, now}},
		{`INSERT INTO customers (id, email, name, created_at, updated_at) VALUES (1, 'ada@example.com', 'Ada', ?, ?)`, []any{now, now}},
		{`INSERT INTO orders (id, customer_name, customer_email, total_price, status, created_at, updated_at) VALUES
			(100, 'Ada', 'ada@example.com', '8.50', 'paid', ?, ?),
			(101, 'Ada', 'ada@example.com', '6.00', 'delivered', ?, ?),
			(102, 'Bob', 'bob@example.com', '5.00', 'pending', ?, ?),
			(103, 'Cy', 'cy@example.com', '3.00', 'refunded', ?, ?)`,
			[]any{now.Add(-time.Hour), now, old, now, now, now, now.Add(-2 * time.Hour), now}},
		{`INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES
			(100, 7, 2, '3.00'),
			(100, 8, 1, NULL),
			(101, 7, 2, '3.00'),
			(102, 8, 2, '2.50'),
			(103, 7, 1, '3.00')`, nil},
	}
	for _, st := range stmts {
		require.NoError(t, conn.Exec(st.sql, st.args...).Error)
	}
}

func newTestService(t *testing.T) (*Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC))
	seed(t, conn, clk.Now())
	return newService(Params{DB: conn, Log: zaptest.NewLogger(t), Clock: clk}), clk, conn
}

func TestStats(t *testing.T) {
	svc, _, _ := newTestService(t)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "14.50", stats.TotalRevenue)
	assert.Equal(t, int64(4), stats.TotalOrders)
	assert.Equal(t, int64(1), stats.TotalCustomers)
	assert.Equal(t, int64(2), stats.TotalProducts)
	assert.Equal(t, int64(1), stats.FeaturedProducts)
	assert.Equal(t, "7.25", stats.AverageOrderValue)

	require.Len(t, stats.RecentOrders, 4)
	assert.Equal(t, "102", stats.RecentOrders[0].ID)

	require.Len(t, stats.TopProducts, 2)
	assert.Equal(t, "7", stats.TopProducts[0].ProductID)
	assert.Equal(t, int64(4), stats.TopProducts[0].UnitsSold)
	assert.Equal(t, int64(2), stats.TopProducts[0].Orders)
	assert.Equal(t, "12.00", stats.TopProducts[0].Revenue)
	// No captured unit price: valued at the base price.
	assert.Equal(t, "2.50", stats.TopProducts[1].Revenue)
}

func TestStatsAreCached(t *testing.T) {
	svc, clk, conn := newTestService(t)
	ctx := context.Background()

	first, err := svc.Stats(ctx)
	require.NoError(t, err)

	require.NoError(t, conn.Exec(`UPDATE orders SET status = 'paid' WHERE id = 102`).Error)
	second, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.TotalRevenue, second.TotalRevenue)

	clk.Advance(cacheTTL)
	third, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "19.50", third.TotalRevenue)
}

func TestProductSalesCountsRecentPaidOrders(t *testing.T) {
	svc, clk, _ := newTestService(t)

	sales, err := svc.ProductSales(context.Background(), time.Time{})
	require.NoError(t, err)
	// Order 101 is delivered and order 102 pending; only paid order 100 counts.
	require.Len(t, sales, 2)
	assert.Equal(t, "7", sales[0].ProductID)
	assert.Equal(t, int64(2), sales[0].UnitsSold)
	assert.Equal(t, "8", sales[1].ProductID)

	later, err := svc.ProductSales(context.Background(), clk.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, later)
}

func TestTopSellersAndRevenue(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	top, err := svc.TopSellers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Chocolate Chip", top[0].ProductName)

	revenue, err := svc.RevenueByProduct(ctx)
	require.NoError(t, err)
	require.Len(t, revenue, 2)
	assert.Equal(t, "12.00", revenue[0].Revenue)

	recent, err := svc.RecentOrders(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "102", recent[0].ID)
	assert.Equal(t, "100", recent[1].ID)
	assert.Equal(t, "8.50", recent[1].TotalPrice)
}
