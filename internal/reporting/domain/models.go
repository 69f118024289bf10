package domain

import (
	"context"
	"time"
)

type Service interface {
	Stats(ctx context.Context) (Stats, error)
	RevenueByProduct(ctx context.Context) ([]ProductRevenue, error)
	TopSellers(ctx context.Context, limit int) ([]ProductRevenue, error)
	RecentOrders(ctx context.Context, limit int) ([]RecentOrder, error)
	// ProductSales sums units sold per product on paid orders placed since.
	ProductSales(ctx context.Context, since time.Time) ([]ProductSale, error)
}

// Stats is the admin dashboard summary. Money fields are decimal strings.
type Stats struct {
	TotalRevenue      string           `json:"total_revenue"`
	TotalOrders       int64            `json:"total_orders"`
	TotalCustomers    int64            `json:"total_customers"`
	TotalProducts     int64            `json:"total_products"`
	FeaturedProducts  int64            `json:"featured_products"`
	AverageOrderValue string           `json:"average_order_value"`
	RecentOrders      []RecentOrder    `json:"recent_orders"`
	TopProducts       []ProductRevenue `json:"top_products"`
}

type RecentOrder struct {
	ID           string    `json:"id"`
	CustomerName string    `json:"customer_name"`
	TotalPrice   string    `json:"total_price"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type ProductRevenue struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitsSold   int64  `json:"units_sold"`
	Orders      int64  `json:"orders"`
	Revenue     string `json:"revenue"`
}

type ProductSale struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitsSold   int64  `json:"units_sold"`
}
