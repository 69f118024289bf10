package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/cookiejar/internal/config"
)

const keyCheckoutClient = "checkout:client:%s"

// CheckoutLimiter throttles session creation per client address. A nil
// limiter allows everything.
type CheckoutLimiter struct {
	limiter *Limiter
	rate    float64
	burst   int
}

func NewCheckoutLimiter(cfg config.Config, client *redis.Client) *CheckoutLimiter {
	if client == nil || cfg.Redis.CheckoutRatePerMinute <= 0 || cfg.Redis.CheckoutBurst <= 0 {
		return nil
	}
	return &CheckoutLimiter{
		limiter: NewLimiter(client),
		rate:    float64(cfg.Redis.CheckoutRatePerMinute) / 60,
		burst:   cfg.Redis.CheckoutBurst,
	}
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

func (l *CheckoutLimiter) Allow(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyCheckoutClient, strings.ToLower(strings.TrimSpace(clientKey)))
	return l.limiter.Allow(ctx, key, l.rate, l.burst)
}
