package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	"github.com/smallbiznis/cookiejar/internal/productunit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Store       *config.StoreConfigHolder
	Repo        domain.Repository
	ProductRepo productdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	store       *config.StoreConfigHolder
	repo        domain.Repository
	productRepo productdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("productunit.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		store:       p.Store,
		repo:        p.Repo,
		productRepo: p.ProductRepo,
	}
}

func (s *Service) List(ctx context.Context, productID string) ([]domain.Response, error) {
	id, err := parseID(productID, domain.ErrInvalidProduct)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListByProduct(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) ListForProducts(ctx context.Context, productIDs []int64) (map[int64][]domain.Response, error) {
	items, err := s.repo.ListByProducts(ctx, s.db, productIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[int64][]domain.Response, len(productIDs))
	for i := range items {
		out[items[i].ProductID] = append(out[items[i].ProductID], toResponse(&items[i]))
	}
	return out, nil
}

func (s *Service) GetDefault(ctx context.Context, productID string) (*domain.Response, error) {
	id, err := parseID(productID, domain.ErrInvalidProduct)
	if err != nil {
		return nil, err
	}

	unit, err := s.repo.FindDefault(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, domain.ErrNotFound
	}
	resp := toResponse(unit)
	return &resp, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	productID, err := parseID(req.ProductID, domain.ErrInvalidProduct)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrInvalidProduct
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	now := s.clock.Now()
	unit := &domain.Unit{
		ID:          s.genID.Generate().Int64(),
		ProductID:   productID,
		Name:        name,
		Quantity:    req.Quantity,
		Price:       price,
		IsDefault:   req.IsDefault,
		IsAvailable: available,
		SortOrder:   req.SortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if unit.IsDefault {
			if err := s.repo.ClearDefault(ctx, tx, productID, unit.ID); err != nil {
				return err
			}
		}
		return s.repo.Insert(ctx, tx, unit)
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(unit)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	id, err := parseID(req.ID, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}

	unit, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		unit.Name = name
	}
	if req.Quantity != nil {
		if *req.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
		unit.Quantity = *req.Quantity
	}
	if req.Price != nil {
		price, err := parsePrice(*req.Price)
		if err != nil {
			return nil, err
		}
		unit.Price = price
	}
	if req.IsDefault != nil {
		unit.IsDefault = *req.IsDefault
	}
	if req.IsAvailable != nil {
		unit.IsAvailable = *req.IsAvailable
	}
	if req.SortOrder != nil {
		unit.SortOrder = *req.SortOrder
	}
	unit.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if unit.IsDefault {
			if err := s.repo.ClearDefault(ctx, tx, unit.ProductID, unit.ID); err != nil {
				return err
			}
		}
		return s.repo.Update(ctx, tx, unit)
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(unit)
	return &resp, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	unitID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return err
	}

	unit, err := s.repo.FindByID(ctx, s.db, unitID)
	if err != nil {
		return err
	}
	if unit == nil {
		return domain.ErrNotFound
	}
	return s.repo.Delete(ctx, s.db, unitID)
}

func (s *Service) CreateDefaultUnits(ctx context.Context, db *gorm.DB, productID int64, basePrice decimal.Decimal) ([]domain.Response, error) {
	tiers := s.store.Get().UnitTiers
	now := s.clock.Now()

	resp := make([]domain.Response, 0, len(tiers))
	seenDefault := false
	for _, tier := range tiers {
		if tier.Quantity < 1 {
			continue
		}
		multiplier := decimal.NewFromFloat(tier.Multiplier)
		if !multiplier.IsPositive() {
			multiplier = decimal.NewFromInt(1)
		}
		price := basePrice.
			Mul(decimal.NewFromInt(int64(tier.Quantity))).
			Mul(multiplier).
			Round(2)

		unit := &domain.Unit{
			ID:          s.genID.Generate().Int64(),
			ProductID:   productID,
			Name:        tier.Name,
			Quantity:    tier.Quantity,
			Price:       price,
			IsDefault:   tier.IsDefault && !seenDefault,
			IsAvailable: true,
			SortOrder:   tier.SortOrder,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if unit.IsDefault {
			seenDefault = true
		}
		if err := s.repo.Insert(ctx, db, unit); err != nil {
			return nil, err
		}
		resp = append(resp, toResponse(unit))
	}

	s.log.Debug("default units created", zap.Int64("product_id", productID), zap.Int("count", len(resp)))
	return resp, nil
}

func parseID(value string, invalid error) (int64, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return id.Int64(), nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !price.IsPositive() {
		return decimal.Decimal{}, domain.ErrInvalidPrice
	}
	return price.Round(2), nil
}

func toResponse(u *domain.Unit) domain.Response {
	return domain.Response{
		ID:          snowflake.ID(u.ID).String(),
		ProductID:   snowflake.ID(u.ProductID).String(),
		Name:        u.Name,
		Quantity:    u.Quantity,
		Price:       u.Price.StringFixed(2),
		IsDefault:   u.IsDefault,
		IsAvailable: u.IsAvailable,
		SortOrder:   u.SortOrder,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
