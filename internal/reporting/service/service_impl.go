package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/internal/cache"
	"github.com/smallbiznis/cookiejar/internal/clock"
	orderdomain "github.com/smallbiznis/cookiejar/internal/order/domain"
	"github.com/smallbiznis/cookiejar/internal/reporting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	cacheTTL           = 30 * time.Second
	recentOrdersLimit  = 10
	topProductsLimit   = 5
	maxReportRowsLimit = 100
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	cache cache.Cache[string, any]
}

func NewService(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("reporting.service"),
		clock: p.Clock,
		cache: cache.NewTTLCacheWithClock[string, any](p.Clock.Now),
	}
}

// cached serves key from the in-process cache, loading it on a miss.
func cached[T any](s *Service, key string, load func() (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		if out, ok := v.(T); ok {
			return out, nil
		}
	}
	out, err := load()
	if err != nil {
		return out, err
	}
	s.cache.Set(key, out, cacheTTL)
	return out, nil
}

func revenueStatuses() []string {
	out := make([]string, 0, len(orderdomain.RevenueStatuses))
	for _, st := range orderdomain.RevenueStatuses {
		out = append(out, string(st))
	}
	return out
}

type totalsRow struct {
	Revenue      decimal.Decimal `gorm:"column:revenue"`
	RevenueCount int64           `gorm:"column:revenue_count"`
}

type countsRow struct {
	Orders    int64 `gorm:"column:orders"`
	Customers int64 `gorm:"column:customers"`
	Products  int64 `gorm:"column:products"`
	Featured  int64 `gorm:"column:featured"`
}

func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	return cached(s, "stats", func() (domain.Stats, error) {
		var totals totalsRow
		if err := s.db.WithContext(ctx).Raw(
			`SELECT COALESCE(SUM(total_price), 0) AS revenue,
			        COUNT(*) AS revenue_count
			 FROM orders
			 WHERE status IN ?`,
			revenueStatuses(),
		).Scan(&totals).Error; err != nil {
			return domain.Stats{}, err
		}

		var counts countsRow
		if err := s.db.WithContext(ctx).Raw(
			`SELECT (SELECT COUNT(*) FROM orders) AS orders,
			        (SELECT COUNT(*) FROM customers) AS customers,
			        (SELECT COUNT(*) FROM products) AS products,
			        (SELECT COUNT(*) FROM products WHERE is_featured = ?) AS featured`,
			true,
		).Scan(&counts).Error; err != nil {
			return domain.Stats{}, err
		}

		recent, err := s.recentOrders(ctx, recentOrdersLimit)
		if err != nil {
			return domain.Stats{}, err
		}
		top, err := s.productRevenue(ctx, topProductsLimit, "units_sold DESC")
		if err != nil {
			return domain.Stats{}, err
		}

		// Average over orders that brought in revenue; pending and canceled
		// orders would drag it down.
		average := decimal.Zero
		if totals.RevenueCount > 0 {
			average = totals.Revenue.Div(decimal.NewFromInt(totals.RevenueCount))
		}

		return domain.Stats{
			TotalRevenue:      totals.Revenue.StringFixed(2),
			TotalOrders:       counts.Orders,
			TotalCustomers:    counts.Customers,
			TotalProducts:     counts.Products,
			FeaturedProducts:  counts.Featured,
			AverageOrderValue: average.StringFixed(2),
			RecentOrders:      recent,
			TopProducts:       top,
		}, nil
	})
}

func (s *Service) RevenueByProduct(ctx context.Context) ([]domain.ProductRevenue, error) {
	return cached(s, "revenue_by_product", func() ([]domain.ProductRevenue, error) {
		return s.productRevenue(ctx, 0, "revenue DESC")
	})
}

func (s *Service) TopSellers(ctx context.Context, limit int) ([]domain.ProductRevenue, error) {
	limit = clampLimit(limit, topProductsLimit)
	return cached(s, fmt.Sprintf("top_sellers:%d", limit), func() ([]domain.ProductRevenue, error) {
		return s.productRevenue(ctx, limit, "units_sold DESC")
	})
}

func (s *Service) RecentOrders(ctx context.Context, limit int) ([]domain.RecentOrder, error) {
	limit = clampLimit(limit, recentOrdersLimit)
	return cached(s, fmt.Sprintf("recent_orders:%d", limit), func() ([]domain.RecentOrder, error) {
		return s.recentOrders(ctx, limit)
	})
}

type productSaleRow struct {
	ProductID   int64  `gorm:"column:product_id"`
	ProductName string `gorm:"column:product_name"`
	UnitsSold   int64  `gorm:"column:units_sold"`
}

func (s *Service) ProductSales(ctx context.Context, since time.Time) ([]domain.ProductSale, error) {
	if since.IsZero() {
		since = s.clock.Now().AddDate(0, 0, -30)
	}
	since = since.UTC()
	key := "product_sales:" + since.Truncate(time.Minute).Format(time.RFC3339)
	return cached(s, key, func() ([]domain.ProductSale, error) {
		var rows []productSaleRow
		if err := s.db.WithContext(ctx).Raw(
			`SELECT oi.product_id AS product_id,
			        p.name AS product_name,
			        SUM(oi.quantity) AS units_sold
			 FROM order_items oi
			 JOIN orders o ON o.id = oi.order_id
			 JOIN products p ON p.id = oi.product_id
			 WHERE o.status = ? AND o.created_at >= ?
			 GROUP BY oi.product_id, p.name
			 ORDER BY units_sold DESC, oi.product_id ASC`,
			string(orderdomain.StatusPaid),
			since,
		).Scan(&rows).Error; err != nil {
			return nil, err
		}

		out := make([]domain.ProductSale, 0, len(rows))
		for _, row := range rows {
			out = append(out, domain.ProductSale{
				ProductID:   snowflake.ID(row.ProductID).String(),
				ProductName: row.ProductName,
				UnitsSold:   row.UnitsSold,
			})
		}
		return out, nil
	})
}

type productRevenueRow struct {
	ProductID   int64           `gorm:"column:product_id"`
	ProductName string          `gorm:"column:product_name"`
	UnitsSold   int64           `gorm:"column:units_sold"`
	Orders      int64           `gorm:"column:orders"`
	Revenue     decimal.Decimal `gorm:"column:revenue"`
}

// productRevenue aggregates order lines of revenue orders. Lines recorded
// without a unit price are valued at the product's base price.
func (s *Service) productRevenue(ctx context.Context, limit int, orderBy string) ([]domain.ProductRevenue, error) {
	query := `SELECT oi.product_id AS product_id,
	                 p.name AS product_name,
	                 SUM(oi.quantity) AS units_sold,
	                 COUNT(DISTINCT oi.order_id) AS orders,
	                 COALESCE(SUM(oi.quantity * COALESCE(oi.unit_price, p.base_price)), 0) AS revenue
	          FROM order_items oi
	          JOIN orders o ON o.id = oi.order_id
	          JOIN products p ON p.id = oi.product_id
	          WHERE o.status IN ?
	          GROUP BY oi.product_id, p.name
	          ORDER BY ` + orderBy + `, oi.product_id ASC`
	args := []any{revenueStatuses()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []productRevenueRow
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.ProductRevenue, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.ProductRevenue{
			ProductID:   snowflake.ID(row.ProductID).String(),
			ProductName: row.ProductName,
			UnitsSold:   row.UnitsSold,
			Orders:      row.Orders,
			Revenue:     row.Revenue.StringFixed(2),
		})
	}
	return out, nil
}

type recentOrderRow struct {
	ID           int64           `gorm:"column:id"`
	CustomerName string          `gorm:"column:customer_name"`
	TotalPrice   decimal.Decimal `gorm:"column:total_price"`
	Status       string          `gorm:"column:status"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
}

func (s *Service) recentOrders(ctx context.Context, limit int) ([]domain.RecentOrder, error) {
	var rows []recentOrderRow
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, customer_name, total_price, status, created_at
		 FROM orders
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.RecentOrder, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.RecentOrder{
			ID:           snowflake.ID(row.ID).String(),
			CustomerName: row.CustomerName,
			TotalPrice:   row.TotalPrice.StringFixed(2),
			Status:       row.Status,
			CreatedAt:    row.CreatedAt,
		})
	}
	return out, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxReportRowsLimit {
		return maxReportRowsLimit
	}
	return limit
}
