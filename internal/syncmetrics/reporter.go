package syncmetrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/cookiejar/internal/billingsync/domain"
	"go.uber.org/zap"
)

// Reporter records bulk sync runs into a private registry and pushes it.
type Reporter struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	pusher   Pusher
	log      *zap.Logger

	products    *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
	lastRun     *prometheus.GaugeVec
	runsTotal   *prometheus.CounterVec
	failedTotal *prometheus.CounterVec
}

func NewReporter(pusher Pusher, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	r := &Reporter{
		registry: registry,
		pusher:   pusher,
		log:      log.Named("syncmetrics"),
		products: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cookiejar_sync_run_products",
			Help: "Products per action in the last bulk sync run.",
		}, []string{"scope", "action"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cookiejar_sync_run_duration_seconds",
			Help:    "Wall time of bulk sync runs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}, []string{"scope"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cookiejar_sync_run_last_timestamp_seconds",
			Help: "Start time of the last bulk sync run.",
		}, []string{"scope"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cookiejar_sync_runs_total",
			Help: "Bulk sync runs.",
		}, []string{"scope"}),
		failedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cookiejar_sync_failed_products_total",
			Help: "Products that failed to sync across all runs.",
		}, []string{"scope"}),
	}
	registry.MustRegister(r.products, r.duration, r.lastRun, r.runsTotal, r.failedTotal)
	return r
}

// ProvideRunReporter exposes the reporter to the sync service.
func ProvideRunReporter(r *Reporter) domain.RunReporter {
	return r
}

func (r *Reporter) ReportRun(ctx context.Context, run domain.RunSummary) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	r.products.WithLabelValues(run.Scope, domain.ActionCreated).Set(float64(run.Created))
	r.products.WithLabelValues(run.Scope, domain.ActionUpdated).Set(float64(run.Updated))
	r.products.WithLabelValues(run.Scope, domain.ActionSkipped).Set(float64(run.Skipped))
	r.products.WithLabelValues(run.Scope, domain.ActionFailed).Set(float64(run.Failed))
	r.duration.WithLabelValues(run.Scope).Observe(run.Duration.Seconds())
	r.lastRun.WithLabelValues(run.Scope).Set(float64(run.StartedAt.Unix()))
	r.runsTotal.WithLabelValues(run.Scope).Inc()
	r.failedTotal.WithLabelValues(run.Scope).Add(float64(run.Failed))
	r.mu.Unlock()

	if r.pusher == nil {
		return nil
	}
	return r.pusher.Push(ctx, r.registry)
}

// Registry is exposed for tests and for mounting on an admin scrape endpoint.
func (r *Reporter) Registry() *prometheus.Registry {
	return r.registry
}
