package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/internal/order/domain"
	"github.com/smallbiznis/cookiejar/pkg/db/option"
	"github.com/smallbiznis/cookiejar/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, customer_name, customer_email, total_price, remote_payment_intent_id,
	remote_customer_id, remote_session_id, status, refunded_amount, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.CustomerName,
		order.CustomerEmail,
		order.TotalPrice,
		order.RemotePaymentIntentID,
		order.RemoteCustomerID,
		order.RemoteSessionID,
		order.Status,
		order.RefundedAmount,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.Item) error {
	for _, item := range items {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?)`,
			item.OrderID, item.ProductID, item.Quantity, item.UnitPrice,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Order, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*domain.Order, error) {
	return r.findOne(ctx, db, "remote_payment_intent_id = ?", paymentIntentID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Order, error) {
	var orders []*domain.Order
	stmt := db.WithContext(ctx).Model(&domain.Order{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Email != "" {
		stmt = stmt.Where("customer_email = ?", filter.Email)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Order("id desc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderIDs []int64) ([]domain.ItemDetail, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var items []domain.ItemDetail
	err := db.WithContext(ctx).Raw(
		`SELECT oi.order_id, oi.product_id, p.name AS product_name, oi.quantity, oi.unit_price, p.base_price
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id IN ?
		 ORDER BY oi.order_id, p.name`,
		orderIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CompareAndSetStatus(ctx context.Context, db *gorm.DB, id int64, from, to domain.Status, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, at, id, from,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) SetRefundedAmount(ctx context.Context, db *gorm.DB, id int64, from, to decimal.Decimal, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders SET refunded_amount = ?, updated_at = ? WHERE id = ? AND refunded_amount = ?`,
		to, at, id, from,
	)
	return res.RowsAffected > 0, res.Error
}
