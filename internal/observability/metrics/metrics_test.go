package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_eid", "NX-8820-A"),
		attribute.String("identity_id", "u1"),
		attribute.String("event_type", "submitted"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "identity_id" {
			t.Fatalf("identity_id must not be a metric label")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordJoinRequest(context.Background(), "NX-8820-A", "submitted")
	m.RecordEIDCollision(context.Background())

	var a *AuthorizationMetrics
	a.Observe("role.create", true)
}

func TestDomainCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "test"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	ctx := context.Background()
	m.RecordJoinRequest(ctx, "NX-8820-A", "submitted")
	m.RecordJoinRequest(ctx, "NX-8820-A", "submitted")
	m.RecordEIDCollision(ctx)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				totals[metric.Name] += point.Value
			}
		}
	}
	if totals["nexusguard_join_requests_total"] != 2 {
		t.Fatalf("expected 2 join request events, got %d", totals["nexusguard_join_requests_total"])
	}
	if totals["nexusguard_eid_collisions_total"] != 1 {
		t.Fatalf("expected 1 collision, got %d", totals["nexusguard_eid_collisions_total"])
	}
}

func TestAuthorizationDecisions(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewAuthorizationMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m.Observe("role.create", true)
	m.Observe("role.create", false)
	m.Observe("role.create", false)

	if got := testutil.ToFloat64(m.decisions.WithLabelValues(DecisionDeny, "role.create")); got != 2 {
		t.Fatalf("expected 2 denials, got %v", got)
	}

	var out dto.Metric
	if err := m.decisions.WithLabelValues(DecisionAllow, "role.create").Write(&out); err != nil {
		t.Fatalf("write: %v", err)
	}
	if out.GetCounter().GetValue() != 1 {
		t.Fatalf("expected 1 allow, got %v", out.GetCounter().GetValue())
	}
}

func TestRegisterReusesExistingCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewAuthorizationMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewAuthorizationMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	first.Observe("view.read", true)
	if got := testutil.ToFloat64(second.decisions.WithLabelValues(DecisionAllow, "view.read")); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/health", "200")); got != 1 {
		t.Fatalf("expected 1 health request, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "unmatched", "404")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}
