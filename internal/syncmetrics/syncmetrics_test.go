package syncmetrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/cookiejar/internal/billingsync/domain"
	"github.com/smallbiznis/cookiejar/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type capturePusher struct {
	pushes int
}

func (c *capturePusher) Push(context.Context, *prometheus.Registry) error {
	c.pushes++
	return nil
}

func TestReporterRecordsRun(t *testing.T) {
	pusher := &capturePusher{}
	r := NewReporter(pusher, zaptest.NewLogger(t))

	err := r.ReportRun(context.Background(), domain.RunSummary{
		Scope:     "all",
		Total:     8,
		Created:   6,
		Skipped:   1,
		Failed:    1,
		StartedAt: time.Unix(1_700_000_000, 0),
		Duration:  1500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pusher.pushes)

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	byName := map[string]bool{}
	for _, f := range families {
		byName[f.GetName()] = true
	}
	assert.True(t, byName["cookiejar_sync_run_products"])
	assert.True(t, byName["cookiejar_sync_failed_products_total"])
	assert.True(t, byName["cookiejar_sync_run_duration_seconds"])
}

func TestNilReporterIsNoop(t *testing.T) {
	var r *Reporter
	assert.NoError(t, r.ReportRun(context.Background(), domain.RunSummary{}))
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	var got prompb.WriteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "snappy", req.Header.Get("Content-Encoding"))
		assert.Equal(t, "Bearer token", req.Header.Get("Authorization"))
		body, _ := io.ReadAll(req.Body)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, got.Unmarshal(raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "cookiejar_test_total"})
	registry.MustRegister(counter)
	counter.Add(3)

	pusher := NewRemoteWritePusher(srv.URL, "token")
	pusher.now = func() time.Time { return time.UnixMilli(42) }
	require.NoError(t, pusher.Push(context.Background(), registry))

	require.Len(t, got.Timeseries, 1)
	assert.Equal(t, 3.0, got.Timeseries[0].Samples[0].Value)
	assert.Equal(t, int64(42), got.Timeseries[0].Samples[0].Timestamp)
	assert.Equal(t, "__name__", got.Timeseries[0].Labels[0].Name)
}

func TestNewPusherSelection(t *testing.T) {
	log := zaptest.NewLogger(t)
	assert.Nil(t, NewPusher(config.Config{}, log))

	cfg := config.Config{SyncMetrics: config.SyncMetricsConfig{Exporter: "prometheus_pushgateway", Endpoint: "http://pushgateway:9091"}}
	_, ok := NewPusher(cfg, log).(*PushgatewayPusher)
	assert.True(t, ok)

	cfg.SyncMetrics.Exporter = "carrier_pigeon"
	assert.Nil(t, NewPusher(cfg, log))
}

func TestToTimeSeriesExpandsHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cookiejar_test_seconds",
		Buckets: []float64{1, 2},
	}, []string{"scope"})
	registry.MustRegister(hist)
	hist.WithLabelValues("all").Observe(1.5)

	families, err := registry.Gather()
	require.NoError(t, err)
	series := toTimeSeries(families, 7)

	got := map[string]float64{}
	for _, ts := range series {
		var name, le string
		for _, l := range ts.Labels {
			switch l.Name {
			case "__name__":
				name = l.Value
			case "le":
				le = l.Value
			}
		}
		assert.Equal(t, int64(7), ts.Samples[0].Timestamp)
		got[name+"{"+le+"}"] = ts.Samples[0].Value
	}
	assert.Equal(t, map[string]float64{
		"cookiejar_test_seconds_bucket{1}":    0,
		"cookiejar_test_seconds_bucket{2}":    1,
		"cookiejar_test_seconds_bucket{+Inf}": 1,
		"cookiejar_test_seconds_sum{}":        1.5,
		"cookiejar_test_seconds_count{}":      1,
	}, got)
}

func TestSeriesLabelsAreSorted(t *testing.T) {
	labels := seriesLabels("x_total", nil, prompb.Label{Name: "scope", Value: "all"}, prompb.Label{Name: "le", Value: "1"})
	require.Len(t, labels, 3)
	assert.Equal(t, "__name__", labels[0].Name)
	assert.Equal(t, "le", labels[1].Name)
	assert.Equal(t, "scope", labels[2].Name)
}

func TestRemoteWritePusherSurfacesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "cookiejar_test_gauge"})
	registry.MustRegister(gauge)
	gauge.Set(1)

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), registry)
	assert.ErrorContains(t, err, "remote write rejected")
}

func TestNewPusherRejectsRelativeEndpoint(t *testing.T) {
	cfg := config.Config{SyncMetrics: config.SyncMetricsConfig{Exporter: "prometheus_remote_write", Endpoint: "metrics/write"}}
	assert.Nil(t, NewPusher(cfg, zaptest.NewLogger(t)))
}
