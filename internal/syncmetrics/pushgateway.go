package syncmetrics

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	obstracing "github.com/smallbiznis/cookiejar/internal/observability/tracing"
)

// PushgatewayPusher replaces the job's group on every push, so the gateway
// always holds the latest run.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
	client   *http.Client
}

func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	return &PushgatewayPusher{
		endpoint: endpoint,
		job:      strings.TrimSpace(job),
		grouping: grouping,
		client:   &http.Client{Timeout: pushTimeout, Transport: tracedTransport{base: http.DefaultTransport}},
	}
}

func (p *PushgatewayPusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	if p.endpoint == "" || p.job == "" {
		return errors.New("pushgateway endpoint and job are required")
	}

	req := push.New(p.endpoint, p.job).Gatherer(registry).Client(p.client)
	for key, value := range p.grouping {
		if key, value = strings.TrimSpace(key), strings.TrimSpace(value); key != "" && value != "" {
			req = req.Grouping(key, value)
		}
	}
	return req.PushContext(ctx)
}

// tracedTransport forwards the caller's trace context to the collector.
type tracedTransport struct {
	base http.RoundTripper
}

func (t tracedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	obstracing.InjectHeaders(req.Context(), req.Header)
	return t.base.RoundTrip(req)
}
