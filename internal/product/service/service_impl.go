package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/product/domain"
	"github.com/smallbiznis/cookiejar/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultCategory    = "cookies"
	defaultUnitType    = "individual"
	defaultMinQuantity = 1
	defaultMaxQuantity = 100
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListFilter{
		Available: req.Available,
		Featured:  req.Featured,
		Category:  strings.TrimSpace(req.Category),
		SortBy:    strings.TrimSpace(req.SortBy),
		OrderBy:   strings.TrimSpace(req.OrderBy),
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = slug.Make(name)
	} else {
		code = slug.Make(code)
	}
	if code == "" {
		return nil, domain.ErrInvalidCode
	}

	price, err := parsePrice(req.BasePrice)
	if err != nil {
		return nil, err
	}

	minQty, maxQty := defaultMinQuantity, defaultMaxQuantity
	if req.MinQuantity != nil {
		minQty = *req.MinQuantity
	}
	if req.MaxQuantity != nil {
		maxQty = *req.MaxQuantity
	}
	if minQty < 1 || maxQty < minQty {
		return nil, domain.ErrInvalidQuantityRange
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	now := s.clock.Now()
	p := &domain.Product{
		ID:          s.genID.Generate().Int64(),
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		BasePrice:   price,
		ImageURL:    trimmedPtr(req.ImageURL),
		IsFeatured:  req.IsFeatured,
		IsAvailable: available,
		Category:    valueOr(req.Category, defaultCategory),
		Ingredients: trimmedPtr(req.Ingredients),
		Allergens:   trimmedPtr(req.Allergens),
		UnitType:    valueOr(req.UnitType, defaultUnitType),
		MinQuantity: minQty,
		MaxQuantity: maxQty,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, s.db, p); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrCodeAlreadyExists
		}
		return nil, err
	}

	s.log.Info("product created", zap.Int64("product_id", p.ID), zap.String("code", p.Code))
	resp := toResponse(p)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	item, err := s.find(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Description != nil {
		item.Description = strings.TrimSpace(*req.Description)
	}
	if req.BasePrice != nil {
		price, err := parsePrice(*req.BasePrice)
		if err != nil {
			return nil, err
		}
		item.BasePrice = price
	}
	if req.ImageURL != nil {
		item.ImageURL = trimmedPtr(req.ImageURL)
	}
	if req.IsFeatured != nil {
		item.IsFeatured = *req.IsFeatured
	}
	if req.Category != nil {
		item.Category = valueOr(*req.Category, defaultCategory)
	}
	if req.Ingredients != nil {
		item.Ingredients = trimmedPtr(req.Ingredients)
	}
	if req.Allergens != nil {
		item.Allergens = trimmedPtr(req.Allergens)
	}
	if req.UnitType != nil {
		item.UnitType = valueOr(*req.UnitType, defaultUnitType)
	}
	if req.MinQuantity != nil {
		item.MinQuantity = *req.MinQuantity
	}
	if req.MaxQuantity != nil {
		item.MaxQuantity = *req.MaxQuantity
	}
	if item.MinQuantity < 1 || item.MaxQuantity < item.MinQuantity {
		return nil, domain.ErrInvalidQuantityRange
	}

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}

	resp := toResponse(item)
	return &resp, nil
}

// SetAvailability soft-enables or disables a product. Products are never deleted.
func (s *Service) SetAvailability(ctx context.Context, id string, available bool) (*domain.Response, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	changed, err := s.repo.SetAvailability(ctx, s.db, item.ID, available, now)
	if err != nil {
		return nil, err
	}
	if changed {
		item.IsAvailable = available
		item.UpdatedAt = now
		s.log.Info("product availability changed",
			zap.Int64("product_id", item.ID),
			zap.Bool("available", available),
		)
	}

	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) find(ctx context.Context, id string) (*domain.Product, error) {
	productID, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// ParseID accepts the decimal form of a product id.
func ParseID(id string) (int64, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed <= 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed.Int64(), nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !price.IsPositive() {
		return decimal.Decimal{}, domain.ErrInvalidPrice
	}
	return price.Round(2), nil
}

func toResponse(p *domain.Product) domain.Response {
	return domain.Response{
		ID:              snowflake.ID(p.ID).String(),
		Code:            p.Code,
		Name:            p.Name,
		Description:     p.Description,
		BasePrice:       p.BasePrice.StringFixed(2),
		ImageURL:        p.ImageURL,
		IsFeatured:      p.IsFeatured,
		IsAvailable:     p.IsAvailable,
		Category:        p.Category,
		Ingredients:     p.Ingredients,
		Allergens:       p.Allergens,
		UnitType:        p.UnitType,
		MinQuantity:     p.MinQuantity,
		MaxQuantity:     p.MaxQuantity,
		RemoteProductID: p.RemoteProductID,
		RemotePriceID:   p.RemotePriceID,
		RemoteSyncedAt:  p.RemoteSyncedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func valueOr(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}
