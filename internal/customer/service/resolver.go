package service

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	"github.com/smallbiznis/cookiejar/internal/customer/domain"
	"github.com/smallbiznis/cookiejar/internal/observability/metrics"
	"github.com/smallbiznis/cookiejar/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	resolveLockTTL  = 10 * time.Second
	resolveLockWait = 5 * time.Second

	resolveSourceLocal   = "local"
	resolveSourceRemote  = "remote_lookup"
	resolveSourceCreated = "created"
)

type ResolverParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     domain.Repository
	Provider billingdomain.Provider
	Metrics  *metrics.Metrics
	Locker   *ratelimit.Locker `optional:"true"`
}

type Resolver struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	provider billingdomain.Provider
	metrics  *metrics.Metrics
	locker   *ratelimit.Locker
	timeout  time.Duration
}

func NewResolver(p ResolverParams) domain.Resolver {
	timeout := p.Config.Billing.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Resolver{
		db:       p.DB,
		log:      p.Log.Named("customer.resolver"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		provider: p.Provider,
		metrics:  p.Metrics,
		locker:   p.Locker,
		timeout:  timeout,
	}
}

func (r *Resolver) WithTx(tx *gorm.DB) domain.Resolver {
	cp := *r
	cp.db = tx
	return &cp
}

func (r *Resolver) Resolve(ctx context.Context, email, name string) (string, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return "", domain.ErrInvalidEmail
	}

	local, err := r.repo.FindByEmail(ctx, r.db, email)
	if err != nil {
		return "", err
	}
	if remoteID := remoteIDOf(local); remoteID != "" {
		r.metrics.RecordCustomerResolve(ctx, resolveSourceLocal)
		return remoteID, nil
	}

	lockKey := "customer:resolve:" + email
	token, err := r.locker.Acquire(ctx, lockKey, resolveLockTTL, resolveLockWait)
	if err != nil {
		return "", fmt.Errorf("resolve customer lock: %w", err)
	}
	defer func() {
		if err := r.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			r.log.Warn("release resolver lock failed", zap.Error(err))
		}
	}()

	// Another resolver may have finished while we waited for the lock.
	if local, err = r.repo.FindByEmail(ctx, r.db, email); err != nil {
		return "", err
	}
	if remoteID := remoteIDOf(local); remoteID != "" {
		r.metrics.RecordCustomerResolve(ctx, resolveSourceLocal)
		return remoteID, nil
	}

	remote, err := r.findRemote(ctx, email)
	if err != nil {
		return "", err
	}
	source := resolveSourceRemote
	if remote == nil {
		if remote, err = r.createRemote(ctx, email, name); err != nil {
			return "", err
		}
		source = resolveSourceCreated
	}

	remoteID, err := r.persist(ctx, local, email, valueOr(name, remote.Name), remote.ID)
	if err != nil {
		return "", err
	}

	r.metrics.RecordCustomerResolve(ctx, source)
	r.log.Info("customer resolved",
		zap.String("remote_customer_id", remoteID),
		zap.String("source", source),
	)
	return remoteID, nil
}

func (r *Resolver) findRemote(ctx context.Context, email string) (*billingdomain.RemoteCustomer, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	remote, err := r.provider.FindCustomerByEmail(callCtx, email)
	if err != nil {
		return nil, fmt.Errorf("find remote customer: %w", err)
	}
	return remote, nil
}

func (r *Resolver) createRemote(ctx context.Context, email, name string) (*billingdomain.RemoteCustomer, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	remote, err := r.provider.CreateCustomer(callCtx, billingdomain.CreateCustomerInput{
		Email: email,
		Name:  name,
		Metadata: map[string]string{
			"source":      "cookiejar",
			"created_via": "checkout",
		},
		IdempotencyKey: "customer:" + email,
	})
	if err != nil {
		return nil, fmt.Errorf("create remote customer: %w", err)
	}
	return remote, nil
}

// persist stores remoteID locally and returns the id that won. Concurrent
// inserts for one email collapse onto the first committed row through the
// unique email constraint.
func (r *Resolver) persist(ctx context.Context, local *domain.Customer, email, name, remoteID string) (string, error) {
	now := r.clock.Now()
	if local != nil {
		if _, err := r.repo.SetRemoteID(ctx, r.db, local.ID, remoteID, now); err != nil {
			return "", err
		}
		return r.winner(ctx, email, remoteID)
	}

	customer := &domain.Customer{
		ID:               r.genID.Generate().Int64(),
		RemoteCustomerID: &remoteID,
		Email:            email,
		Name:             name,
		TotalSpent:       decimal.Zero,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	inserted, err := r.repo.Insert(ctx, r.db, customer)
	if err != nil {
		return "", err
	}
	if !inserted {
		return r.winner(ctx, email, remoteID)
	}
	return remoteID, nil
}

func (r *Resolver) winner(ctx context.Context, email, fallback string) (string, error) {
	row, err := r.repo.FindByEmail(ctx, r.db, email)
	if err != nil {
		return "", err
	}
	if id := remoteIDOf(row); id != "" {
		return id, nil
	}
	return fallback, nil
}

func (r *Resolver) RecordOrder(ctx context.Context, remoteCustomerID string, amount decimal.Decimal, at time.Time) error {
	if remoteCustomerID == "" {
		return nil
	}
	ok, err := r.repo.AddOrder(ctx, r.db, remoteCustomerID, amount.Round(2), at)
	if err != nil {
		return err
	}
	if !ok {
		r.log.Warn("order recorded for unknown customer", zap.String("remote_customer_id", remoteCustomerID))
	}
	return nil
}

func (r *Resolver) RecordRefund(ctx context.Context, remoteCustomerID string, amount decimal.Decimal) error {
	if remoteCustomerID == "" || !amount.IsPositive() {
		return nil
	}
	_, err := r.repo.SubtractSpent(ctx, r.db, remoteCustomerID, amount.Round(2), r.clock.Now())
	return err
}

// EnsureFromRemote creates a local row for a remote customer first seen in a webhook.
func (r *Resolver) EnsureFromRemote(ctx context.Context, remoteCustomerID, email, name string) error {
	if remoteCustomerID == "" {
		return nil
	}
	existing, err := r.repo.FindByRemoteID(ctx, r.db, remoteCustomerID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	email = NormalizeEmail(email)
	if email == "" {
		return nil
	}
	byEmail, err := r.repo.FindByEmail(ctx, r.db, email)
	if err != nil {
		return err
	}
	if byEmail != nil {
		_, err := r.repo.SetRemoteID(ctx, r.db, byEmail.ID, remoteCustomerID, r.clock.Now())
		return err
	}

	_, err = r.persist(ctx, nil, email, name, remoteCustomerID)
	return err
}

func remoteIDOf(c *domain.Customer) string {
	if c == nil || c.RemoteCustomerID == nil {
		return ""
	}
	return *c.RemoteCustomerID
}

func valueOr(value, def string) string {
	if value != "" {
		return value
	}
	return def
}

var _ domain.Resolver = (*Resolver)(nil)
