package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/cookiejar/internal/billing/domain"
	"github.com/smallbiznis/cookiejar/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const providerName = "stripe"

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client talks to the Stripe REST API with form-encoded requests.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewClient(cfg Config, m *metrics.Metrics, log *zap.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
		log:     log.Named("billing.stripe"),
	}
}

func (c *Client) Name() string { return providerName }

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do sends one API request and decodes the JSON answer into out.
func (c *Client) do(ctx context.Context, op, method, path string, values url.Values, idempotencyKey string, out any) error {
	if c.apiKey == "" {
		return domain.ErrNotConfigured
	}

	ctx, span := otel.Tracer("cookiejar/billing").Start(ctx, "stripe "+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	target := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if len(values) > 0 {
			target += "?" + values.Encode()
		}
	} else if values != nil {
		body = strings.NewReader(values.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordProviderCall(ctx, op, 0, time.Since(start))
		span.SetStatus(codes.Error, "transport error")
		return err
	}
	defer resp.Body.Close()
	c.metrics.RecordProviderCall(ctx, op, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, "provider error")
		perr := &domain.ProviderError{Operation: op, StatusCode: resp.StatusCode}
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err == nil {
			perr.Type = stripeErr.Error.Type
			perr.Code = stripeErr.Error.Code
			perr.Message = strings.TrimSpace(stripeErr.Error.Message)
		}
		c.log.Warn("stripe request failed",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("code", perr.Code),
		)
		return perr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(domain.ErrInvalidResponse, err)
	}
	return nil
}

func setMetadata(values url.Values, prefix string, metadata map[string]string) {
	for k, v := range metadata {
		values.Set(prefix+"["+k+"]", v)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func unixTime(v int64) *time.Time {
	if v == 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}

var _ domain.Provider = (*Client)(nil)
