package service

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	customerdomain "github.com/smallbiznis/cookiejar/internal/customer/domain"
	"github.com/smallbiznis/cookiejar/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/cookiejar/internal/order/domain"
	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	"github.com/smallbiznis/cookiejar/internal/providers/email"
	"github.com/smallbiznis/cookiejar/internal/reconcile/domain"
	subscriptiondomain "github.com/smallbiznis/cookiejar/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Config       config.Config
	Store        *config.StoreConfigHolder
	Verifier     billingdomain.WebhookVerifier
	Provider     billingdomain.Provider
	Repo         domain.Repository
	Orders       orderdomain.Repository
	Transitioner orderdomain.Transitioner
	Products     productdomain.Repository
	Resolver     customerdomain.Resolver
	Mirror       subscriptiondomain.Mirror
	Email        email.Provider   `optional:"true"`
	Metrics      *metrics.Metrics `optional:"true"`
}

type handler func(ctx context.Context, event *billingdomain.Event) (domain.Outcome, error)

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	store        *config.StoreConfigHolder
	verifier     billingdomain.WebhookVerifier
	provider     billingdomain.Provider
	repo         domain.Repository
	orders       orderdomain.Repository
	transitioner orderdomain.Transitioner
	products     productdomain.Repository
	resolver     customerdomain.Resolver
	mirror       subscriptiondomain.Mirror
	email        email.Provider
	metrics      *metrics.Metrics
	timeout      time.Duration
	storeName    string
	handlers     map[billingdomain.EventKind]handler
}

func New(p Params) domain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	timeout := p.Config.Billing.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	mailer := p.Email
	if mailer == nil {
		mailer = &email.NoOpProvider{}
	}

	s := &Service{
		db:           p.DB,
		log:          p.Log.Named("reconcile.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		store:        p.Store,
		verifier:     p.Verifier,
		provider:     p.Provider,
		repo:         p.Repo,
		orders:       p.Orders,
		transitioner: p.Transitioner,
		products:     p.Products,
		resolver:     p.Resolver,
		mirror:       p.Mirror,
		email:        mailer,
		metrics:      p.Metrics,
		timeout:      timeout,
	}
	s.handlers = map[billingdomain.EventKind]handler{
		billingdomain.EventCheckoutCompleted:   s.onCheckoutCompleted,
		billingdomain.EventPaymentSucceeded:    s.onPaymentSucceeded,
		billingdomain.EventPaymentFailed:       s.onPaymentFailed,
		billingdomain.EventChargeRefunded:      s.onChargeRefunded,
		billingdomain.EventDisputeCreated:      s.onDisputeCreated,
		billingdomain.EventDisputeClosed:       s.onDisputeClosed,
		billingdomain.EventSubscriptionCreated: s.onSubscription,
		billingdomain.EventSubscriptionUpdated: s.onSubscription,
		billingdomain.EventSubscriptionDeleted: s.onSubscription,
		billingdomain.EventInvoicePaid:         s.onInvoice,
		billingdomain.EventInvoiceFailed:       s.onInvoice,
	}
	return s
}

func (s *Service) Ingest(ctx context.Context, payload []byte, headers http.Header) (domain.Outcome, error) {
	if len(payload) == 0 {
		return "", domain.ErrEmptyPayload
	}
	if err := s.verifier.Verify(ctx, payload, headers); err != nil {
		return "", err
	}
	event, err := s.verifier.Parse(ctx, payload)
	if err != nil {
		return "", err
	}

	now := s.clock.Now().UTC()
	received := domain.EventRecord{
		ID:              s.genID.Generate().Int64(),
		Provider:        event.Provider,
		ProviderEventID: event.ID,
		EventType:       event.RawType,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return "", err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ID)
		if err != nil {
			return "", err
		}
		if stored == nil {
			return "", domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.log.Debug("billing event already processed",
				zap.String("event_id", event.ID),
				zap.String("type", event.RawType),
			)
			s.metrics.RecordBillingEvent(ctx, event.Provider, string(event.Kind), string(domain.OutcomeDuplicate))
			return domain.OutcomeDuplicate, nil
		}
	}

	outcome, err := s.Apply(ctx, event)
	if err != nil {
		s.metrics.RecordBillingEvent(ctx, event.Provider, string(event.Kind), "failed")
		return "", err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, outcome, s.clock.Now().UTC()); err != nil {
		return "", err
	}
	s.metrics.RecordBillingEvent(ctx, event.Provider, string(event.Kind), string(outcome))
	return outcome, nil
}

func (s *Service) Apply(ctx context.Context, event *billingdomain.Event) (domain.Outcome, error) {
	if event == nil || event.ID == "" {
		return "", domain.ErrInvalidEvent
	}
	h, ok := s.handlers[event.Kind]
	if !ok {
		s.log.Debug("billing event ignored",
			zap.String("event_id", event.ID),
			zap.String("type", event.RawType),
		)
		return domain.OutcomeIgnored, nil
	}

	outcome, err := h(ctx, event)
	if err != nil {
		s.log.Error("billing event failed",
			zap.String("event_id", event.ID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
		return "", err
	}
	s.log.Info("billing event applied",
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}
