package repository

import (
	"context"

	"github.com/smallbiznis/cookiejar/internal/productunit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const unitColumns = `id, product_id, name, quantity, price, is_default, is_available, sort_order, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, unit *domain.Unit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_units (`+unitColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		unit.ID,
		unit.ProductID,
		unit.Name,
		unit.Quantity,
		unit.Price,
		unit.IsDefault,
		unit.IsAvailable,
		unit.SortOrder,
		unit.CreatedAt,
		unit.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Unit, error) {
	var unit domain.Unit
	err := db.WithContext(ctx).Raw(
		`SELECT `+unitColumns+` FROM product_units WHERE id = ?`,
		id,
	).Scan(&unit).Error
	if err != nil {
		return nil, err
	}
	if unit.ID == 0 {
		return nil, nil
	}
	return &unit, nil
}

func (r *repo) ListByProduct(ctx context.Context, db *gorm.DB, productID int64) ([]domain.Unit, error) {
	var items []domain.Unit
	err := db.WithContext(ctx).Raw(
		`SELECT `+unitColumns+` FROM product_units
		 WHERE product_id = ? ORDER BY sort_order ASC, quantity ASC`,
		productID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByProducts(ctx context.Context, db *gorm.DB, productIDs []int64) ([]domain.Unit, error) {
	if len(productIDs) == 0 {
		return []domain.Unit{}, nil
	}
	var items []domain.Unit
	err := db.WithContext(ctx).Raw(
		`SELECT `+unitColumns+` FROM product_units
		 WHERE product_id IN ? ORDER BY product_id ASC, sort_order ASC, quantity ASC`,
		productIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindDefault(ctx context.Context, db *gorm.DB, productID int64) (*domain.Unit, error) {
	var unit domain.Unit
	err := db.WithContext(ctx).Raw(
		`SELECT `+unitColumns+` FROM product_units
		 WHERE product_id = ? AND is_default = ? LIMIT 1`,
		productID, true,
	).Scan(&unit).Error
	if err != nil {
		return nil, err
	}
	if unit.ID == 0 {
		return nil, nil
	}
	return &unit, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, unit *domain.Unit) error {
	return db.WithContext(ctx).Exec(
		`UPDATE product_units
		 SET name = ?, quantity = ?, price = ?, is_default = ?, is_available = ?, sort_order = ?, updated_at = ?
		 WHERE id = ?`,
		unit.Name,
		unit.Quantity,
		unit.Price,
		unit.IsDefault,
		unit.IsAvailable,
		unit.SortOrder,
		unit.UpdatedAt,
		unit.ID,
	).Error
}

func (r *repo) ClearDefault(ctx context.Context, db *gorm.DB, productID, keepID int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE product_units SET is_default = ? WHERE product_id = ? AND id <> ? AND is_default = ?`,
		false, productID, keepID, true,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Exec(`DELETE FROM product_units WHERE id = ?`, id).Error
}
