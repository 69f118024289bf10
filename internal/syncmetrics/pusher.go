// Package syncmetrics pushes bulk catalog sync results to a Prometheus
// Pushgateway or remote_write endpoint. Runs are request scoped, so there is
// no scrape target that would outlive them.
package syncmetrics

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/cookiejar/internal/config"
	"go.uber.org/zap"
)

const (
	exporterRemoteWrite = "prometheus_remote_write"
	exporterPushgateway = "prometheus_pushgateway"

	pushTimeout = 5 * time.Second
)

// Pusher ships one gathered registry to a collector.
type Pusher interface {
	Push(ctx context.Context, registry *prometheus.Registry) error
}

// NewPusher picks the exporter named by SYNC_METRICS_EXPORTER. An empty or
// unusable setting disables pushing with a warning; startup never fails on it.
func NewPusher(cfg config.Config, log *zap.Logger) Pusher {
	if log == nil {
		log = zap.NewNop()
	}
	sc := cfg.SyncMetrics
	exporter := strings.ToLower(strings.TrimSpace(sc.Exporter))
	if exporter == "" {
		return nil
	}

	endpoint := strings.TrimSpace(sc.Endpoint)
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		log.Warn("sync metrics disabled",
			zap.String("exporter", exporter),
			zap.String("reason", "SYNC_METRICS_ENDPOINT must be an absolute URL"),
		)
		return nil
	}

	switch exporter {
	case exporterRemoteWrite:
		return NewRemoteWritePusher(endpoint, sc.AuthToken)
	case exporterPushgateway:
		job := strings.TrimSpace(cfg.AppName)
		if job == "" {
			job = "cookiejar"
		}
		return NewPushgatewayPusher(endpoint, job, map[string]string{
			"environment": strings.TrimSpace(cfg.Environment),
		})
	}
	log.Warn("sync metrics disabled",
		zap.String("exporter", exporter),
		zap.String("reason", "unknown exporter"),
	)
	return nil
}
