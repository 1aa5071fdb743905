package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/nexusguard/internal/observability/logger"
	"github.com/smallbiznis/nexusguard/internal/observability/metrics"
	"github.com/smallbiznis/nexusguard/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.logger,
		Config.tracing,
		Config.metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		func() (prometheus.Registerer, prometheus.Gatherer) {
			return prometheus.DefaultRegisterer, prometheus.DefaultGatherer
		},
		metrics.NewAuthorizationMetrics,
		metrics.NewHTTPMetrics,
	),
	// The tracer provider installs the global propagator, so it must exist
	// before the first request even when nothing else depends on it.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

func (c Config) logger() logger.Config {
	out := logger.Config{
		ServiceName:         c.Service,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		IncludeStackOnError: c.Debug(),
	}
	if !c.Debug() {
		out.SamplingInitial, out.SamplingThereafter = 100, 100
	}
	return out
}

func (c Config) tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.Export,
		ServiceName:      c.Service,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.Endpoint,
		ExporterProtocol: c.Protocol,
		SamplingRatio:    c.SamplingRatio,
	}
}

func (c Config) metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.Export,
		ExporterEndpoint: c.Endpoint,
		ExporterProtocol: c.Protocol,
		ServiceName:      c.Service,
		Environment:      c.Environment,
	}
}
