package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/cookiejar/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var errInvalidEmail = errors.New("invalid_email")

func newLoggedEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		QuietPaths: []string{"/health"},
		ErrorClassifier: func(err error) (string, string) {
			return "validation_error", err.Error()
		},
	}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/checkout", func(c *gin.Context) {
		_ = c.Error(errInvalidEmail)
		c.Status(http.StatusBadRequest)
	})
	r.POST("/webhooks/billing", func(c *gin.Context) {
		c.Set("billing_event_outcome", "duplicate")
		c.JSON(http.StatusOK, gin.H{"received": true})
	})
	r.GET("/request-id", func(c *gin.Context) {
		c.String(http.StatusOK, obscontext.RequestIDFromContext(c.Request.Context()))
	})
	return r
}

func TestGinMiddlewarePropagatesRequestID(t *testing.T) {
	observeGlobal(t)
	r := newLoggedEngine()

	req := httptest.NewRequest(http.MethodGet, "/request-id", nil)
	req.Header.Set("X-Request-Id", "req-abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "req-abc", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/request-id", nil))
	generated := rec.Header().Get("X-Request-Id")
	require.NotEmpty(t, generated)
	assert.Equal(t, generated, rec.Body.String())
}

func TestGinMiddlewareLevels(t *testing.T) {
	logs := observeGlobal(t)
	r := newLoggedEngine()

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/checkout", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/billing", nil))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)

	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, "validation_error", entries[1].ContextMap()["error_type"])
	assert.Equal(t, "invalid_email", entries[1].ContextMap()["error_code"])

	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
	assert.Equal(t, "duplicate", entries[2].ContextMap()["billing_event_outcome"])
	assert.NotEmpty(t, entries[2].ContextMap()["request_id"])
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, requestLevel(http.StatusBadGateway, "", true))
	assert.Equal(t, zapcore.WarnLevel, requestLevel(http.StatusForbidden, "forbidden", false))
	assert.Equal(t, zapcore.InfoLevel, requestLevel(http.StatusCreated, "", false))
}
