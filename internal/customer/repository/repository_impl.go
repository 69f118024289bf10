package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/internal/customer/domain"
	"github.com/smallbiznis/cookiejar/pkg/db/option"
	"github.com/smallbiznis/cookiejar/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const customerColumns = `id, remote_customer_id, email, name, phone, preferences, total_orders, total_spent,
	last_order_at, is_active, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO customers (id, remote_customer_id, email, name, phone, preferences, total_orders, total_spent,
			last_order_at, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		customer.ID,
		customer.RemoteCustomerID,
		customer.Email,
		customer.Name,
		customer.Phone,
		customer.Preferences,
		customer.TotalOrders,
		customer.TotalSpent,
		customer.LastOrderAt,
		customer.IsActive,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Customer, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Customer, error) {
	return r.findOne(ctx, db, `email = ?`, email)
}

func (r *repo) FindByRemoteID(ctx context.Context, db *gorm.DB, remoteID string) (*domain.Customer, error) {
	return r.findOne(ctx, db, `remote_customer_id = ?`, remoteID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM customers WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListCustomerFilter, page pagination.Pagination) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	stmt := db.WithContext(ctx).Model(&domain.Customer{})
	if filter.Email != "" {
		stmt = stmt.Where("email = ?", filter.Email)
	}
	if filter.Active != nil {
		stmt = stmt.Where("is_active = ?", *filter.Active)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("id desc").
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) SetRemoteID(ctx context.Context, db *gorm.DB, id int64, remoteID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE customers SET remote_customer_id = ?, updated_at = ?
		 WHERE id = ? AND remote_customer_id IS NULL`,
		remoteID, at, id,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) AddOrder(ctx context.Context, db *gorm.DB, remoteID string, amount decimal.Decimal, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE customers
		 SET total_orders = total_orders + 1, total_spent = total_spent + ?, last_order_at = ?, updated_at = ?
		 WHERE remote_customer_id = ?`,
		amount, at, at, remoteID,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) SubtractSpent(ctx context.Context, db *gorm.DB, remoteID string, amount decimal.Decimal, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE customers
		 SET total_spent = CASE WHEN total_spent < ? THEN 0 ELSE total_spent - ? END, updated_at = ?
		 WHERE remote_customer_id = ?`,
		amount, amount, at, remoteID,
	)
	return res.RowsAffected > 0, res.Error
}
