package billing

import (
	"github.com/smallbiznis/cookiejar/internal/billing/domain"
	"github.com/smallbiznis/cookiejar/internal/billing/stripe"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	"github.com/smallbiznis/cookiejar/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("billing.provider",
	fx.Provide(NewProvider),
	fx.Provide(NewWebhookVerifier),
)

func NewProvider(cfg config.Config, m *metrics.Metrics, log *zap.Logger) domain.Provider {
	if cfg.Billing.APIKey == "" {
		log.Warn("billing provider API key is not set; remote calls will fail")
	}
	return stripe.NewClient(stripe.Config{
		APIKey:  cfg.Billing.APIKey,
		BaseURL: cfg.Billing.APIBaseURL,
		Timeout: cfg.Billing.RequestTimeout,
	}, m, log)
}

func NewWebhookVerifier(cfg config.Config, clk clock.Clock) domain.WebhookVerifier {
	return stripe.NewWebhookVerifier(cfg.Billing.WebhookSecret, stripe.DefaultTolerance, clk.Now)
}
