package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	joinRequests   metric.Int64Counter
	eidCollisions  metric.Int64Counter
	viewRecomputes metric.Int64Counter
}

// NewProvider installs the global meter provider. Without export the
// provider is a no-op and every instrument records nothing.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	var provider metric.MeterProvider = noop.NewMeterProvider()
	if cfg.Enabled {
		exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
		if err != nil {
			return nil, err
		}
		sdk := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(resource.NewWithAttributes(semconv.SchemaURL,
				semconv.ServiceName(serviceName(cfg)),
				semconv.DeploymentEnvironment(cfg.Environment),
			)),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
		)
		if lc != nil {
			lc.Append(fx.StopHook(sdk.Shutdown))
		}
		if log != nil {
			log.Info("exporting otel metrics", zap.String("endpoint", cfg.ExporterEndpoint), zap.String("protocol", cfg.ExporterProtocol))
		}
		provider = sdk
	}
	otel.SetMeterProvider(provider)
	return provider, nil
}

const exportInterval = 10 * time.Second

func serviceName(cfg Config) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return "nexusguard"
}

// New creates the domain counters on the given provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName(cfg))
	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.joinRequests, "nexusguard_join_requests_total", "Join request lifecycle events."},
		{&m.eidCollisions, "nexusguard_eid_collisions_total", "Generated organization eids that were already taken."},
		{&m.viewRecomputes, "nexusguard_view_recomputes_total", "Access views derived for live streams."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.target = counter
	}
	return m, nil
}

// RecordJoinRequest counts a join request event (submitted, approved).
func (m *Metrics) RecordJoinRequest(ctx context.Context, orgEID, event string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("org_eid", strings.TrimSpace(orgEID)),
		attribute.String("event_type", strings.TrimSpace(event)),
	)
	m.joinRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordEIDCollision(ctx context.Context) {
	if m == nil {
		return
	}
	m.eidCollisions.Add(ctx, 1)
}

func (m *Metrics) RecordViewRecompute(ctx context.Context, orgEID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("org_eid", strings.TrimSpace(orgEID)))
	m.viewRecomputes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		if endpoint == "" {
			return otlpmetrichttp.New(ctx)
		}
		return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint))
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_eid":     {},
	"endpoint":    {},
	"status_code": {},
	"event_type":  {},
	"decision":    {},
	"reason":      {},
}

// FilterAttributes keeps only low-cardinality labels. Identity ids never
// become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			kept = append(kept, attr)
		}
	}
	return kept
}
