package observability

import (
	"github.com/smallbiznis/cookiejar/internal/observability/logger"
	"github.com/smallbiznis/cookiejar/internal/observability/metrics"
	"github.com/smallbiznis/cookiejar/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	gormlogger "gorm.io/gorm/logger"
)

// Module wires logging, tracing and metrics from config.Config. Every
// sub-package takes its own small config derived here.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.loggerConfig,
		Config.gormLoggerConfig,
		Config.tracingConfig,
		Config.metricsConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// Nothing else depends on the tracer provider; force it so otel globals
	// are installed before the first request.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

func (c Config) loggerConfig() logger.Config {
	debug := c.Debug()
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               debug,
		IncludeCaller:       true,
		IncludeStackOnError: debug,
	}
}

// gormLoggerConfig logs every statement in debug mode, otherwise slow and
// failed ones only.
func (c Config) gormLoggerConfig() logger.GormLoggerConfig {
	cfg := logger.GormLoggerConfig{
		Level:                gormlogger.Warn,
		SlowThreshold:        c.SlowQueryThreshold,
		IgnoreRecordNotFound: true,
	}
	if c.Debug() {
		cfg.Level = gormlogger.Info
	}
	return cfg
}

func (c Config) tracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) metricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
	}
}
