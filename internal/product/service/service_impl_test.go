package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/product/domain"
	"github.com/smallbiznis/cookiejar/internal/product/repository"
	"github.com/smallbiznis/cookiejar/pkg/db/dbtest"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return New(Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	}).(*Service)
}

func TestCreateDefaultsAndSlug(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Create(context.Background(), domain.CreateRequest{
		Name:      "Chocolate Chip",
		BasePrice: "3",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.Code != "chocolate-chip" {
		t.Fatalf("expected slug code, got %q", resp.Code)
	}
	if resp.BasePrice != "3.00" {
		t.Fatalf("expected 3.00, got %s", resp.BasePrice)
	}
	if !resp.IsAvailable || resp.Category != "cookies" || resp.MinQuantity != 1 || resp.MaxQuantity != 100 {
		t.Fatalf("unexpected defaults: %+v", resp)
	}
	if resp.RemoteProductID != nil {
		t.Fatalf("new product must not carry remote ids")
	}

	got, err := svc.Get(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Chocolate Chip" || got.BasePrice != "3.00" {
		t.Fatalf("unexpected product: %+v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		req  domain.CreateRequest
		want error
	}{
		{domain.CreateRequest{Name: " ", BasePrice: "3"}, domain.ErrInvalidName},
		{domain.CreateRequest{Name: "Oatmeal", BasePrice: "0"}, domain.ErrInvalidPrice},
		{domain.CreateRequest{Name: "Oatmeal", BasePrice: "abc"}, domain.ErrInvalidPrice},
		{domain.CreateRequest{Name: "Oatmeal", BasePrice: "2", MinQuantity: intPtr(5), MaxQuantity: intPtr(2)}, domain.ErrInvalidQuantityRange},
	}
	for _, tc := range cases {
		if _, err := svc.Create(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("expected %v, got %v", tc.want, err)
		}
	}
}

func TestCreateDuplicateCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateRequest{Name: "Snickerdoodle", BasePrice: "2.50"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, domain.CreateRequest{Name: "Snickerdoodle", BasePrice: "2.75"}); !errors.Is(err, domain.ErrCodeAlreadyExists) {
		t.Fatalf("expected duplicate code error, got %v", err)
	}
}

func TestSetAvailabilityAndListFilters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, _ := svc.Create(ctx, domain.CreateRequest{Name: "Sugar", BasePrice: "2", IsFeatured: true})
	b, _ := svc.Create(ctx, domain.CreateRequest{Name: "Molasses", BasePrice: "2"})

	if _, err := svc.SetAvailability(ctx, b.ID, false); err != nil {
		t.Fatalf("set availability: %v", err)
	}

	available := true
	items, err := svc.List(ctx, domain.ListRequest{Available: &available})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != a.ID {
		t.Fatalf("expected only available product, got %+v", items)
	}

	featured := true
	items, _ = svc.List(ctx, domain.ListRequest{Featured: &featured})
	if len(items) != 1 || items[0].ID != a.ID {
		t.Fatalf("expected only featured product, got %+v", items)
	}
}

func TestUpdateRejectsInvalidQuantityRange(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, _ := svc.Create(ctx, domain.CreateRequest{Name: "Ginger", BasePrice: "2"})
	_, err := svc.Update(ctx, domain.UpdateRequest{ID: p.ID, MaxQuantity: intPtr(0)})
	if !errors.Is(err, domain.ErrInvalidQuantityRange) {
		t.Fatalf("expected quantity error, got %v", err)
	}

	price := "4.25"
	updated, err := svc.Update(ctx, domain.UpdateRequest{ID: p.ID, BasePrice: &price})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.BasePrice != "4.25" {
		t.Fatalf("expected 4.25, got %s", updated.BasePrice)
	}
}

func TestGetUnknownProduct(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Get(context.Background(), "42"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "abc"); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func intPtr(v int) *int { return &v }
