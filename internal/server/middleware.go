package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/cookiejar/internal/auth/domain"
	obscontext "github.com/smallbiznis/cookiejar/internal/observability/context"
	"github.com/smallbiznis/cookiejar/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextAdminKey = "admin_user"
	adminRealm      = `Basic realm="cookiejar admin", charset="UTF-8"`
)

// AdminAuthRequired authenticates HTTP Basic credentials against admin_users.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		email, password, ok := c.Request.BasicAuth()
		if !ok || strings.TrimSpace(email) == "" || password == "" {
			c.Header("WWW-Authenticate", adminRealm)
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.authSvc.Authenticate(c.Request.Context(), email, password)
		if err != nil {
			c.Header("WWW-Authenticate", adminRealm)
			AbortWithError(c, err)
			return
		}

		c.Set(contextAdminKey, user)
		c.Request = c.Request.WithContext(obscontext.WithAdmin(c.Request.Context(), strconv.FormatInt(user.ID, 10)))
		c.Next()
	}
}

// authorize gates a route on the casbin policy for the authenticated admin.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := adminFromContext(c)
		if user == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), user.Subject(), string(user.Role), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func adminFromContext(c *gin.Context) *authdomain.AdminUser {
	value, ok := c.Get(contextAdminKey)
	if !ok {
		return nil
	}
	user, _ := value.(*authdomain.AdminUser)
	return user
}

// CheckoutRateLimit throttles session and payment intent creation per client
// address. Redis failures let the request through.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.checkoutLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)
		result, err := s.checkoutLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("checkout rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			logger.WithContext(ctx, s.log).Warn("checkout rate limit exceeded", zap.String("endpoint", endpoint))
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, "client-rate")
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
