package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	productrepo "github.com/smallbiznis/cookiejar/internal/product/repository"
	"github.com/smallbiznis/cookiejar/internal/productunit/domain"
	"github.com/smallbiznis/cookiejar/internal/productunit/repository"
	"github.com/smallbiznis/cookiejar/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*Service, *gorm.DB, int64) {
	t.Helper()

	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	products := productrepo.Provide()
	product := &productdomain.Product{
		ID:          node.Generate().Int64(),
		Code:        "peanut-butter",
		Name:        "Peanut Butter",
		BasePrice:   decimal.RequireFromString("3.00"),
		IsAvailable: true,
		Category:    "cookies",
		UnitType:    "individual",
		MinQuantity: 1,
		MaxQuantity: 100,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, products.Create(context.Background(), conn, product))

	svc := New(Params{
		DB:          conn,
		Log:         zaptest.NewLogger(t),
		GenID:       node,
		Clock:       clock.NewFakeClock(now),
		Store:       config.NewStaticStoreConfigHolder(config.DefaultStoreConfig()),
		Repo:        repository.Provide(),
		ProductRepo: products,
	}).(*Service)
	return svc, conn, product.ID
}

func TestCreateDefaultUnitsAppliesTierDiscounts(t *testing.T) {
	svc, conn, productID := setup(t)

	units, err := svc.CreateDefaultUnits(context.Background(), conn, productID, decimal.RequireFromString("3.00"))
	require.NoError(t, err)
	require.Len(t, units, 3)

	assert.Equal(t, "Individual", units[0].Name)
	assert.Equal(t, "3.00", units[0].Price)
	assert.True(t, units[0].IsDefault)
	assert.Equal(t, "16.20", units[1].Price)
	assert.Equal(t, "30.60", units[2].Price)

	def, err := svc.GetDefault(context.Background(), snowflake.ID(productID).String())
	require.NoError(t, err)
	assert.Equal(t, units[0].ID, def.ID)
}

func TestCreateDefaultUnsetsPreviousDefault(t *testing.T) {
	svc, conn, productID := setup(t)
	ctx := context.Background()
	pid := snowflake.ID(productID).String()

	_, err := svc.CreateDefaultUnits(ctx, conn, productID, decimal.RequireFromString("3.00"))
	require.NoError(t, err)

	box, err := svc.Create(ctx, domain.CreateRequest{
		ProductID: pid,
		Name:      "Party Box",
		Quantity:  24,
		Price:     "55.00",
		IsDefault: true,
	})
	require.NoError(t, err)

	dbtest.AssertCount(t, conn, `SELECT COUNT(*) FROM product_units WHERE product_id = ? AND is_default = ?`, 1, productID, true)

	def, err := svc.GetDefault(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, box.ID, def.ID)
}

func TestUpdateToDefault(t *testing.T) {
	svc, conn, productID := setup(t)
	ctx := context.Background()

	units, err := svc.CreateDefaultUnits(ctx, conn, productID, decimal.RequireFromString("3.00"))
	require.NoError(t, err)

	isDefault := true
	updated, err := svc.Update(ctx, domain.UpdateRequest{ID: units[2].ID, IsDefault: &isDefault})
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)

	list, err := svc.List(ctx, snowflake.ID(productID).String())
	require.NoError(t, err)
	defaults := 0
	for _, u := range list {
		if u.IsDefault {
			defaults++
			assert.Equal(t, units[2].ID, u.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestCreateValidation(t *testing.T) {
	svc, _, productID := setup(t)
	ctx := context.Background()
	pid := snowflake.ID(productID).String()

	_, err := svc.Create(ctx, domain.CreateRequest{ProductID: pid, Name: "Six", Quantity: 0, Price: "10"})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.Create(ctx, domain.CreateRequest{ProductID: pid, Name: "Six", Quantity: 6, Price: "-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = svc.Create(ctx, domain.CreateRequest{ProductID: "999", Name: "Six", Quantity: 6, Price: "10"})
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)
}

func TestDelete(t *testing.T) {
	svc, conn, productID := setup(t)
	ctx := context.Background()

	units, err := svc.CreateDefaultUnits(ctx, conn, productID, decimal.RequireFromString("3.00"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, units[1].ID))
	assert.ErrorIs(t, svc.Delete(ctx, units[1].ID), domain.ErrNotFound)

	grouped, err := svc.ListForProducts(ctx, []int64{productID})
	require.NoError(t, err)
	assert.Len(t, grouped[productID], 2)
}
