package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	syncdomain "github.com/smallbiznis/cookiejar/internal/billingsync/domain"
	"github.com/smallbiznis/cookiejar/internal/catalog/domain"
	"github.com/smallbiznis/cookiejar/internal/config"
	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	productservice "github.com/smallbiznis/cookiejar/internal/product/service"
	unitdomain "github.com/smallbiznis/cookiejar/internal/productunit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Products productdomain.Service
	Units    unitdomain.Service
	Sync     syncdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	products     productdomain.Service
	units        unitdomain.Service
	sync         syncdomain.Service
	syncOnCreate bool
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("catalog.service"),
		products:     p.Products,
		units:        p.Units,
		sync:         p.Sync,
		syncOnCreate: p.Config.Billing.SyncOnCreate,
	}
}

func (s *Service) ListProducts(ctx context.Context, req productdomain.ListRequest) ([]domain.ProductDetail, error) {
	items, err := s.products.List(ctx, req)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if id, err := productservice.ParseID(item.ID); err == nil {
			ids = append(ids, id)
		}
	}
	units, err := s.units.ListForProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProductDetail, 0, len(items))
	for _, item := range items {
		detail := domain.ProductDetail{Response: item, Units: []unitdomain.Response{}}
		if id, err := productservice.ParseID(item.ID); err == nil && len(units[id]) > 0 {
			detail.Units = units[id]
		}
		out = append(out, detail)
	}
	return out, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.ProductDetail, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, product, nil)
}

// CreateProduct writes the product with its default units, then mirrors it
// remotely. A failed mirror leaves the product usable with null remote ids.
func (s *Service) CreateProduct(ctx context.Context, req productdomain.CreateRequest) (*domain.ProductDetail, error) {
	product, err := s.products.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	productID, err := productservice.ParseID(product.ID)
	if err != nil {
		return nil, err
	}

	basePrice, err := decimal.NewFromString(product.BasePrice)
	if err != nil {
		return nil, err
	}
	if _, err := s.units.CreateDefaultUnits(ctx, s.db, productID, basePrice); err != nil {
		s.log.Error("create default units failed", zap.Int64("product_id", productID), zap.Error(err))
		return nil, err
	}

	var syncErr error
	if s.syncOnCreate && product.IsAvailable {
		if _, syncErr = s.sync.SyncProduct(ctx, productID, syncdomain.SyncOptions{}); syncErr != nil {
			s.log.Warn("sync on create failed, product left unsynced",
				zap.Int64("product_id", productID),
				zap.Error(syncErr),
			)
		}
	}
	return s.reload(ctx, product.ID, syncErr)
}

func (s *Service) UpdateProduct(ctx context.Context, req productdomain.UpdateRequest) (*domain.ProductDetail, error) {
	product, err := s.products.Update(ctx, req)
	if err != nil {
		return nil, err
	}
	if product.RemoteProductID == nil {
		return s.detail(ctx, product, nil)
	}

	productID, err := productservice.ParseID(product.ID)
	if err != nil {
		return nil, err
	}
	_, syncErr := s.sync.PushProduct(ctx, productID)
	if syncErr != nil {
		s.log.Warn("push product failed", zap.Int64("product_id", productID), zap.Error(syncErr))
	}
	return s.reload(ctx, product.ID, syncErr)
}

// SetAvailability re-syncs a product that becomes available and archives the
// remote product of one that is disabled.
func (s *Service) SetAvailability(ctx context.Context, id string, available bool) (*domain.ProductDetail, error) {
	product, err := s.products.SetAvailability(ctx, id, available)
	if err != nil {
		return nil, err
	}
	productID, err := productservice.ParseID(product.ID)
	if err != nil {
		return nil, err
	}

	var syncErr error
	switch {
	case available:
		_, syncErr = s.sync.PushProduct(ctx, productID)
	case product.RemoteProductID != nil:
		syncErr = s.sync.ArchiveProduct(ctx, productID)
	}
	if syncErr != nil {
		s.log.Warn("availability sync failed",
			zap.Int64("product_id", productID),
			zap.Bool("available", available),
			zap.Error(syncErr),
		)
	}
	return s.reload(ctx, product.ID, syncErr)
}

func (s *Service) BulkSetAvailability(ctx context.Context, ids []string, available bool) (domain.BulkAvailabilityResult, error) {
	if len(ids) == 0 {
		return domain.BulkAvailabilityResult{}, productdomain.ErrInvalidID
	}

	result := domain.BulkAvailabilityResult{Updated: []string{}}
	for _, id := range ids {
		detail, err := s.SetAvailability(ctx, id, available)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			if result.Failed == nil {
				result.Failed = map[string]string{}
			}
			result.Failed[id] = err.Error()
			continue
		}
		if detail.SyncError != "" {
			if result.Failed == nil {
				result.Failed = map[string]string{}
			}
			result.Failed[id] = detail.SyncError
		}
		result.Updated = append(result.Updated, detail.ID)
	}
	return result, nil
}

func (s *Service) reload(ctx context.Context, id string, syncErr error) (*domain.ProductDetail, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, product, syncErr)
}

func (s *Service) detail(ctx context.Context, product *productdomain.Response, syncErr error) (*domain.ProductDetail, error) {
	units, err := s.units.List(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	detail := &domain.ProductDetail{Response: *product, Units: units}
	if syncErr != nil {
		detail.SyncError = syncErr.Error()
	}
	return detail, nil
}
