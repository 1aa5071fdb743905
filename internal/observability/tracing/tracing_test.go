package tracing

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestSafeAttributes(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/health"),
		attribute.String("identity_id", "u1"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestSafeErrorKeepsInnermostMessage(t *testing.T) {
	base := errors.New("store_unavailable")
	err := SafeError(fmt.Errorf("load snapshot: %w", base))
	if err.Error() != "store_unavailable" {
		t.Fatalf("expected innermost message, got %q", err.Error())
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestGinMiddlewareStartsSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if _, err := NewProvider(nil, Config{SamplingRatio: 1}, nil); err != nil {
		t.Fatalf("provider: %v", err)
	}

	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/health", func(c *gin.Context) {
		if !trace.SpanContextFromContext(c.Request.Context()).IsValid() {
			t.Errorf("expected active span")
		}
		c.Status(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestGinMiddlewareNamesSpanByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(previous)

	router := gin.New()
	router.Use(GinMiddleware())
	router.POST("/api/join-requests/:id/approve", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("approve: %w", errors.New("store_unavailable")))
		c.Status(http.StatusServiceUnavailable)
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/join-requests/7/approve", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "POST /api/join-requests/:id/approve" {
		t.Fatalf("unexpected span name %q", span.Name())
	}
	if span.Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", span.Status())
	}
	found := false
	for _, attr := range span.Attributes() {
		if attr.Key == attrJoinRequestID && attr.Value.AsString() == "7" {
			found = true
		}
	}
	if !found {
		t.Fatalf("join request id attribute missing: %v", span.Attributes())
	}
}
