package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	"github.com/smallbiznis/cookiejar/internal/billingsync/domain"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	"github.com/smallbiznis/cookiejar/internal/observability/metrics"
	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultBatchSize  = 5
	defaultBatchPause = 100 * time.Millisecond
	defaultTimeout    = 15 * time.Second

	scopeAll      = "all"
	scopeUnsynced = "unsynced"
)

var tracer = otel.Tracer("cookiejar/billingsync")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Config      config.Config
	Store       *config.StoreConfigHolder
	Provider    billingdomain.Provider
	ProductRepo productdomain.Repository
	Metrics     *metrics.Metrics
	Reporter    domain.RunReporter `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	store    *config.StoreConfigHolder
	provider billingdomain.Provider
	products productdomain.Repository
	metrics  *metrics.Metrics
	reporter domain.RunReporter
	currency string
	timeout  time.Duration
}

func New(p Params) domain.Service {
	timeout := p.Config.Billing.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	currency := strings.ToLower(strings.TrimSpace(p.Config.Billing.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("billingsync.service"),
		clock:    p.Clock,
		store:    p.Store,
		provider: p.Provider,
		products: p.ProductRepo,
		metrics:  p.Metrics,
		reporter: p.Reporter,
		currency: currency,
		timeout:  timeout,
	}
}

func (s *Service) SyncProduct(ctx context.Context, productID int64, opts domain.SyncOptions) (domain.SyncResult, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return domain.SyncResult{}, err
	}
	return s.syncOne(ctx, product, opts)
}

func (s *Service) SyncAllProducts(ctx context.Context) ([]domain.SyncResult, error) {
	available := true
	return s.run(ctx, scopeAll, productdomain.ListFilter{Available: &available}, domain.SyncOptions{})
}

func (s *Service) SyncUnsyncedProducts(ctx context.Context) ([]domain.SyncResult, error) {
	return s.run(ctx, scopeUnsynced, productdomain.ListFilter{Unsynced: true}, domain.SyncOptions{SkipExisting: true})
}

func (s *Service) EnsurePrice(ctx context.Context, productID int64) (string, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return "", err
	}

	if product.IsSynced() {
		amount := billingdomain.ToMinorUnits(product.BasePrice)
		price, err := s.remotePrice(ctx, *product.RemotePriceID)
		if err != nil {
			return "", err
		}
		if priceMatches(price, *product.RemoteProductID, amount, s.currency) {
			return price.ID, nil
		}
	}

	result, err := s.syncOne(ctx, product, domain.SyncOptions{ForceUpdate: true})
	if err != nil {
		return "", err
	}
	return result.RemotePriceID, nil
}

// PushProduct mirrors an admin edit: descriptive fields go to the remote
// product and a changed base price rolls a new remote price.
func (s *Service) PushProduct(ctx context.Context, productID int64) (domain.SyncResult, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return domain.SyncResult{}, err
	}
	if product.RemoteProductID == nil {
		return s.syncOne(ctx, product, domain.SyncOptions{ForceUpdate: true})
	}

	in := billingdomain.UpdateProductInput{
		Name:        &product.Name,
		Description: &product.Description,
		Active:      &product.IsAvailable,
		ImageURL:    product.ImageURL,
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	_, err = s.provider.UpdateProduct(callCtx, *product.RemoteProductID, in)
	cancel()
	if err != nil && !billingdomain.IsNotFound(err) {
		s.metrics.RecordProductSync(ctx, domain.ActionFailed)
		return domain.SyncResult{}, fmt.Errorf("update remote product: %w", err)
	}

	result, err := s.syncOne(ctx, product, domain.SyncOptions{ForceUpdate: true})
	if err != nil {
		return domain.SyncResult{}, err
	}
	if result.Action == domain.ActionSkipped {
		if err := s.products.TouchSynced(ctx, s.db, product.ID, s.clock.Now()); err != nil {
			return domain.SyncResult{}, err
		}
		result.Action = domain.ActionUpdated
	}
	return result, nil
}

// ArchiveProduct deactivates the remote product; remote products are never deleted.
func (s *Service) ArchiveProduct(ctx context.Context, productID int64) error {
	product, err := s.load(ctx, productID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if product.RemoteProductID != nil {
		inactive := false
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		_, err := s.provider.UpdateProduct(callCtx, *product.RemoteProductID, billingdomain.UpdateProductInput{Active: &inactive})
		cancel()
		if err != nil && !billingdomain.IsNotFound(err) {
			return fmt.Errorf("archive remote product: %w", err)
		}
		if err := s.products.TouchSynced(ctx, s.db, product.ID, now); err != nil {
			return err
		}
	}

	if _, err := s.products.SetAvailability(ctx, s.db, product.ID, false, now); err != nil {
		return err
	}
	s.log.Info("product archived", zap.Int64("product_id", product.ID))
	return nil
}

func (s *Service) syncOne(ctx context.Context, product *productdomain.Product, opts domain.SyncOptions) (domain.SyncResult, error) {
	ctx, span := tracer.Start(ctx, "billingsync.SyncProduct")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", product.ID))

	result, err := s.sync(ctx, product, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync failed")
		s.metrics.RecordProductSync(ctx, domain.ActionFailed)
		return domain.SyncResult{}, err
	}

	span.SetAttributes(attribute.String("sync.action", result.Action))
	s.metrics.RecordProductSync(ctx, result.Action)
	return result, nil
}

func (s *Service) sync(ctx context.Context, product *productdomain.Product, opts domain.SyncOptions) (domain.SyncResult, error) {
	amount := billingdomain.ToMinorUnits(product.BasePrice)
	if amount <= 0 {
		return domain.SyncResult{}, domain.ErrInvalidPrice
	}

	previousRemoteID := ""
	if product.RemoteProductID != nil && *product.RemoteProductID != "" {
		if opts.SkipExisting && !opts.ForceUpdate {
			return resultFor(product, domain.ActionSkipped), nil
		}

		remote, err := s.remoteProduct(ctx, *product.RemoteProductID)
		if err != nil {
			return domain.SyncResult{}, err
		}
		if remote != nil {
			return s.reconcilePrice(ctx, product, remote.ID, amount)
		}

		previousRemoteID = *product.RemoteProductID
		s.log.Warn("remote product missing, recreating",
			zap.Int64("product_id", product.ID),
			zap.String("remote_product_id", previousRemoteID),
		)
	}

	return s.create(ctx, product, amount, previousRemoteID)
}

func (s *Service) create(ctx context.Context, product *productdomain.Product, amount int64, previousRemoteID string) (domain.SyncResult, error) {
	key := fmt.Sprintf("product:%d:%d", product.ID, product.UpdatedAt.Unix())
	if previousRemoteID != "" {
		key += ":" + previousRemoteID
	}

	in := billingdomain.CreateProductInput{
		Name:           product.Name,
		Description:    product.Description,
		Active:         product.IsAvailable,
		Metadata:       productMetadata(product),
		IdempotencyKey: key,
	}
	if product.ImageURL != nil {
		in.ImageURL = *product.ImageURL
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	remote, err := s.provider.CreateProduct(callCtx, in)
	cancel()
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("create remote product: %w", err)
	}

	price, err := s.createPrice(ctx, product, remote.ID, amount)
	if err != nil {
		return domain.SyncResult{}, err
	}

	if err := s.products.UpdateRemoteIDs(ctx, s.db, product.ID, remote.ID, price.ID, s.clock.Now()); err != nil {
		return domain.SyncResult{}, err
	}
	product.RemoteProductID = &remote.ID
	product.RemotePriceID = &price.ID

	s.log.Info("product synced",
		zap.Int64("product_id", product.ID),
		zap.String("remote_product_id", remote.ID),
		zap.String("remote_price_id", price.ID),
	)
	return resultFor(product, domain.ActionCreated), nil
}

func (s *Service) reconcilePrice(ctx context.Context, product *productdomain.Product, remoteProductID string, amount int64) (domain.SyncResult, error) {
	if product.RemotePriceID != nil && *product.RemotePriceID != "" {
		price, err := s.remotePrice(ctx, *product.RemotePriceID)
		if err != nil {
			return domain.SyncResult{}, err
		}
		if priceMatches(price, remoteProductID, amount, s.currency) {
			return resultFor(product, domain.ActionSkipped), nil
		}
	}

	price, err := s.createPrice(ctx, product, remoteProductID, amount)
	if err != nil {
		return domain.SyncResult{}, err
	}
	if err := s.products.UpdateRemoteIDs(ctx, s.db, product.ID, remoteProductID, price.ID, s.clock.Now()); err != nil {
		return domain.SyncResult{}, err
	}
	product.RemoteProductID = &remoteProductID
	product.RemotePriceID = &price.ID

	s.log.Info("product price rolled",
		zap.Int64("product_id", product.ID),
		zap.String("remote_price_id", price.ID),
		zap.Int64("unit_amount", amount),
	)
	return resultFor(product, domain.ActionUpdated), nil
}

func (s *Service) createPrice(ctx context.Context, product *productdomain.Product, remoteProductID string, amount int64) (*billingdomain.RemotePrice, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	price, err := s.provider.CreatePrice(callCtx, billingdomain.CreatePriceInput{
		ProductID:      remoteProductID,
		UnitAmount:     amount,
		Currency:       s.currency,
		Metadata:       productMetadata(product),
		IdempotencyKey: fmt.Sprintf("price:%d:%d:%s", product.ID, amount, remoteProductID),
	})
	if err != nil {
		return nil, fmt.Errorf("create remote price: %w", err)
	}
	return price, nil
}

// remoteProduct returns nil when the provider no longer knows the product.
func (s *Service) remoteProduct(ctx context.Context, id string) (*billingdomain.RemoteProduct, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	remote, err := s.provider.GetProduct(callCtx, id)
	if err != nil {
		if billingdomain.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("retrieve remote product: %w", err)
	}
	if remote.Deleted {
		return nil, nil
	}
	return remote, nil
}

func (s *Service) remotePrice(ctx context.Context, id string) (*billingdomain.RemotePrice, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	price, err := s.provider.GetPrice(callCtx, id)
	if err != nil {
		if billingdomain.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("retrieve remote price: %w", err)
	}
	return price, nil
}

func (s *Service) load(ctx context.Context, productID int64) (*productdomain.Product, error) {
	product, err := s.products.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}

func priceMatches(price *billingdomain.RemotePrice, remoteProductID string, amount int64, currency string) bool {
	if price == nil || !price.Active {
		return false
	}
	if price.UnitAmount != amount {
		return false
	}
	if price.ProductID != "" && price.ProductID != remoteProductID {
		return false
	}
	return price.Currency == "" || price.Currency == currency
}

func productMetadata(product *productdomain.Product) map[string]string {
	return map[string]string{
		"product_id": strconv.FormatInt(product.ID, 10),
		"code":       product.Code,
		"source":     "cookiejar",
	}
}

func resultFor(product *productdomain.Product, action string) domain.SyncResult {
	result := domain.SyncResult{
		ProductID: snowflake.ID(product.ID).String(),
		Action:    action,
	}
	if product.RemoteProductID != nil {
		result.RemoteProductID = *product.RemoteProductID
	}
	if product.RemotePriceID != nil {
		result.RemotePriceID = *product.RemotePriceID
	}
	return result
}

func (s *Service) batchSettings() (int, time.Duration) {
	size, pause := defaultBatchSize, defaultBatchPause
	if s.store != nil {
		cfg := s.store.Get().Sync
		if cfg.BatchSize > 0 {
			size = cfg.BatchSize
		}
		if cfg.BatchPause >= 0 {
			pause = cfg.BatchPause
		}
	}
	return size, pause
}

// run syncs products in fixed-size batches. A failing product is logged and
// left out of the results; it never stops the batch.
func (s *Service) run(ctx context.Context, scope string, filter productdomain.ListFilter, opts domain.SyncOptions) ([]domain.SyncResult, error) {
	started := s.clock.Now()
	items, err := s.products.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	size, pause := s.batchSettings()
	results := make([]*domain.SyncResult, len(items))

	for start := 0; start < len(items); start += size {
		if start > 0 && pause > 0 {
			select {
			case <-ctx.Done():
				return collect(results), ctx.Err()
			case <-time.After(pause):
			}
		}

		end := min(start+size, len(items))
		var g errgroup.Group
		g.SetLimit(size)
		for i := start; i < end; i++ {
			g.Go(func() error {
				res, err := s.syncOne(ctx, &items[i], opts)
				if err != nil {
					s.log.Error("product sync failed",
						zap.Int64("product_id", items[i].ID),
						zap.String("scope", scope),
						zap.Error(err),
					)
					return nil
				}
				results[i] = &res
				return nil
			})
		}
		_ = g.Wait()
	}

	out := collect(results)
	summary := summarize(scope, len(items), out, started, s.clock.Now())
	s.log.Info("bulk sync finished",
		zap.String("scope", scope),
		zap.Int("total", summary.Total),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	if s.reporter != nil {
		if err := s.reporter.ReportRun(ctx, summary); err != nil {
			s.log.Warn("sync run report failed", zap.Error(err))
		}
	}
	return out, nil
}

func collect(results []*domain.SyncResult) []domain.SyncResult {
	out := make([]domain.SyncResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func summarize(scope string, total int, results []domain.SyncResult, started, finished time.Time) domain.RunSummary {
	summary := domain.RunSummary{
		Scope:     scope,
		Total:     total,
		Failed:    total - len(results),
		StartedAt: started,
		Duration:  finished.Sub(started),
	}
	for _, r := range results {
		switch r.Action {
		case domain.ActionCreated:
			summary.Created++
		case domain.ActionUpdated:
			summary.Updated++
		case domain.ActionSkipped:
			summary.Skipped++
		}
	}
	return summary
}
