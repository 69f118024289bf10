package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cookiejar/internal/customer/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.resolver.Resolve(ctx, fmt.Sprintf("c%d@example.com", i), "C")
		require.NoError(t, err)
	}

	svc := New(Params{DB: f.db, Log: zaptest.NewLogger(t), Repo: f.repo})

	page, err := svc.List(ctx, domain.ListCustomerRequest{PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page.Customers, 3)
	assert.True(t, page.PageInfo.HasMore)
	assert.Equal(t, "c4@example.com", page.Customers[0].Email)

	next, err := svc.List(ctx, domain.ListCustomerRequest{PageSize: 3, PageToken: page.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, next.Customers, 2)
	assert.False(t, next.PageInfo.HasMore)

	got, err := svc.GetByID(ctx, page.Customers[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", got.TotalSpent)

	_, err = svc.GetByID(ctx, snowflake.ID(12345).String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
