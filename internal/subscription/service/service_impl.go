package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	customerdomain "github.com/smallbiznis/cookiejar/internal/customer/domain"
	"github.com/smallbiznis/cookiejar/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxMetadataValue = 500

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Store    *config.StoreConfigHolder
	Repo     domain.Repository
	Provider billingdomain.Provider
	Resolver customerdomain.Resolver
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	store    *config.StoreConfigHolder
	repo     domain.Repository
	provider billingdomain.Provider
	resolver customerdomain.Resolver
	timeout  time.Duration
}

func NewService(p Params) *Service {
	timeout := p.Config.Billing.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		store:    p.Store,
		repo:     p.Repo,
		provider: p.Provider,
		resolver: p.Resolver,
		timeout:  timeout,
	}
}

func ProvideService(s *Service) domain.Service { return s }
func ProvideMirror(s *Service) domain.Mirror   { return s }

func (s *Service) Create(ctx context.Context, req domain.CreateSubscriptionRequest) (domain.CreateSubscriptionResponse, error) {
	plan, ok := s.store.Get().Plan(req.Plan)
	if !ok {
		return domain.CreateSubscriptionResponse{}, domain.ErrInvalidPlan
	}
	if strings.TrimSpace(plan.PriceID) == "" {
		return domain.CreateSubscriptionResponse{}, domain.ErrPlanNotConfigured
	}

	name := strings.TrimSpace(req.CustomerName)
	if name == "" || strings.TrimSpace(req.CustomerEmail) == "" {
		return domain.CreateSubscriptionResponse{}, domain.ErrInvalidCustomer
	}
	items, err := encodeItems(req.Items)
	if err != nil {
		return domain.CreateSubscriptionResponse{}, err
	}

	customerID, err := s.resolver.Resolve(ctx, req.CustomerEmail, name)
	if err != nil {
		if errors.Is(err, customerdomain.ErrInvalidEmail) {
			return domain.CreateSubscriptionResponse{}, domain.ErrInvalidCustomer
		}
		return domain.CreateSubscriptionResponse{}, err
	}

	metadata := map[string]string{
		"plan":          plan.Key,
		"customer_name": name,
	}
	if items != "" {
		metadata["items"] = items
	}

	// One subscription per customer, plan and day; a retried request replays it.
	day := s.clock.Now().UTC().Format("2006-01-02")
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	remote, err := s.provider.CreateSubscription(callCtx, billingdomain.SubscriptionInput{
		CustomerID:     customerID,
		PriceID:        plan.PriceID,
		Metadata:       metadata,
		IdempotencyKey: fmt.Sprintf("subscription:%s:%s:%s", customerID, plan.Key, day),
	})
	if err != nil {
		s.log.Warn("create subscription failed",
			zap.String("plan", plan.Key),
			zap.String("remote_customer_id", customerID),
			zap.Error(err),
		)
		return domain.CreateSubscriptionResponse{}, err
	}

	if _, err := s.Apply(ctx, nil, *remote); err != nil {
		return domain.CreateSubscriptionResponse{}, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", remote.ID),
		zap.String("plan", plan.Key),
		zap.String("status", remote.Status),
	)

	return domain.CreateSubscriptionResponse{
		SubscriptionID:   remote.ID,
		RemoteCustomerID: customerID,
		Plan: domain.PlanResponse{
			Key:         plan.Key,
			Name:        plan.Name,
			Description: plan.Description,
		},
		Status:           domain.SubscriptionStatus(remote.Status),
		ClientSecret:     remote.ClientSecret,
		CurrentPeriodEnd: remote.CurrentPeriodEnd,
	}, nil
}

// ListActive reads the provider and refreshes the mirror. When the provider
// cannot be reached the mirror answers instead.
func (s *Service) ListActive(ctx context.Context, remoteCustomerID string) ([]domain.Response, error) {
	remoteCustomerID = strings.TrimSpace(remoteCustomerID)
	if remoteCustomerID == "" {
		return nil, domain.ErrInvalidCustomer
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	remote, err := s.provider.ListSubscriptions(callCtx, remoteCustomerID)
	if err != nil {
		if !billingdomain.IsProviderError(err) {
			return nil, err
		}
		s.log.Warn("list subscriptions from provider failed, serving mirror",
			zap.String("remote_customer_id", remoteCustomerID),
			zap.Error(err),
		)
		return s.listMirror(ctx, remoteCustomerID)
	}

	out := make([]domain.Response, 0, len(remote))
	for _, sub := range remote {
		row, err := s.Apply(ctx, nil, sub)
		if err != nil {
			return nil, err
		}
		if !row.Status.IsLive() {
			continue
		}
		resp := toResponse(row)
		resp.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		out = append(out, resp)
	}
	return out, nil
}

func (s *Service) listMirror(ctx context.Context, remoteCustomerID string) ([]domain.Response, error) {
	rows, err := s.repo.ListByCustomer(ctx, s.db, remoteCustomerID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Response, 0, len(rows))
	for i := range rows {
		if rows[i].Status.IsLive() {
			out = append(out, toResponse(&rows[i]))
		}
	}
	return out, nil
}

func (s *Service) Cancel(ctx context.Context, remoteSubscriptionID string) (domain.Response, error) {
	remoteSubscriptionID = strings.TrimSpace(remoteSubscriptionID)
	if remoteSubscriptionID == "" {
		return domain.Response{}, domain.ErrInvalidSubscription
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	remote, err := s.provider.CancelSubscription(callCtx, remoteSubscriptionID)
	if err != nil {
		if billingdomain.IsNotFound(err) {
			return domain.Response{}, domain.ErrNotFound
		}
		return domain.Response{}, err
	}

	row, err := s.Apply(ctx, nil, *remote)
	if err != nil {
		return domain.Response{}, err
	}
	s.log.Info("subscription canceled", zap.String("subscription_id", remote.ID))
	return toResponse(row), nil
}

// Apply upserts the mirror row for a provider subscription.
func (s *Service) Apply(ctx context.Context, tx *gorm.DB, remote billingdomain.RemoteSubscription) (*domain.Subscription, error) {
	if tx == nil {
		tx = s.db
	}
	if remote.ID == "" || remote.CustomerID == "" {
		return nil, domain.ErrInvalidSubscription
	}

	now := s.clock.Now().UTC()
	row := &domain.Subscription{
		ID:                   s.genID.Generate().Int64(),
		RemoteSubscriptionID: remote.ID,
		RemoteCustomerID:     remote.CustomerID,
		Plan:                 s.planFor(remote),
		Status:               domain.SubscriptionStatus(remote.Status),
		CurrentPeriodEnd:     utcPtr(remote.CurrentPeriodEnd),
		CanceledAt:           utcPtr(remote.CanceledAt),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Upsert(ctx, tx, row); err != nil {
		return nil, err
	}

	stored, err := s.repo.FindByRemoteID(ctx, tx, remote.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("subscription %s missing after upsert", remote.ID)
	}
	return stored, nil
}

func (s *Service) planFor(remote billingdomain.RemoteSubscription) string {
	if key := strings.ToLower(strings.TrimSpace(remote.Metadata["plan"])); key != "" {
		return key
	}
	for _, plan := range s.store.Get().Plans {
		if plan.PriceID != "" && plan.PriceID == remote.PriceID {
			return plan.Key
		}
	}
	return ""
}

func encodeItems(items []domain.BoxItem) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	for _, item := range items {
		if _, err := snowflake.ParseString(strings.TrimSpace(item.ProductID)); err != nil || item.Quantity < 1 {
			return "", domain.ErrInvalidItems
		}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	if len(b) > maxMetadataValue {
		return "", nil
	}
	return string(b), nil
}

func toResponse(row *domain.Subscription) domain.Response {
	return domain.Response{
		SubscriptionID:   row.RemoteSubscriptionID,
		RemoteCustomerID: row.RemoteCustomerID,
		Plan:             row.Plan,
		Status:           row.Status,
		CurrentPeriodEnd: row.CurrentPeriodEnd,
		CanceledAt:       row.CanceledAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
