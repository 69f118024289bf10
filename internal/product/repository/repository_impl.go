package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/cookiejar/internal/product/domain"
	"github.com/smallbiznis/cookiejar/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const productColumns = `id, code, name, description, base_price, image_url, is_featured, is_available,
	category, ingredients, allergens, unit_type, min_quantity, max_quantity,
	remote_product_id, remote_price_id, remote_synced_at, created_at, updated_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (id, code, name, description, base_price, image_url, is_featured, is_available,
			category, ingredients, allergens, unit_type, min_quantity, max_quantity, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.Code,
		product.Name,
		product.Description,
		product.BasePrice,
		product.ImageURL,
		product.IsFeatured,
		product.IsAvailable,
		product.Category,
		product.Ingredients,
		product.Allergens,
		product.UnitType,
		product.MinQuantity,
		product.MaxQuantity,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE id IN ?`,
		ids,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Product, error) {
	var items []domain.Product
	stmt := db.WithContext(ctx).Model(&domain.Product{})

	if filter.Available != nil {
		stmt = stmt.Where("is_available = ?", *filter.Available)
	}
	if filter.Featured != nil {
		stmt = stmt.Where("is_featured = ?", *filter.Featured)
	}
	if filter.Category != "" {
		stmt = stmt.Where("category = ?", filter.Category)
	}
	if filter.Unsynced {
		stmt = stmt.Where("remote_product_id IS NULL")
	}

	stmt = option.WithSortBy(option.WithQuerySortBy(filter.SortBy, filter.OrderBy, map[string]bool{
		"created_at": true,
		"updated_at": true,
		"name":       true,
		"base_price": true,
	})).Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE products
		 SET name = ?, description = ?, base_price = ?, image_url = ?, is_featured = ?, category = ?,
			ingredients = ?, allergens = ?, unit_type = ?, min_quantity = ?, max_quantity = ?, updated_at = ?
		 WHERE id = ?`,
		product.Name,
		product.Description,
		product.BasePrice,
		product.ImageURL,
		product.IsFeatured,
		product.Category,
		product.Ingredients,
		product.Allergens,
		product.UnitType,
		product.MinQuantity,
		product.MaxQuantity,
		product.UpdatedAt,
		product.ID,
	).Error
}

// SetAvailability reports whether the flag actually changed.
func (r *repo) SetAvailability(ctx context.Context, db *gorm.DB, id int64, available bool, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE products SET is_available = ?, updated_at = ? WHERE id = ? AND is_available <> ?`,
		available, at, id, available,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateRemoteIDs(ctx context.Context, db *gorm.DB, id int64, remoteProductID, remotePriceID string, syncedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products SET remote_product_id = ?, remote_price_id = ?, remote_synced_at = ? WHERE id = ?`,
		remoteProductID, remotePriceID, syncedAt, id,
	).Error
}

func (r *repo) TouchSynced(ctx context.Context, db *gorm.DB, id int64, syncedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products SET remote_synced_at = ? WHERE id = ?`,
		syncedAt, id,
	).Error
}
