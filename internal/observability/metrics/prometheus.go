package metrics

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// AuthorizationMetrics counts access decisions served by the policy engine.
type AuthorizationMetrics struct {
	decisions *prometheus.CounterVec
}

func NewAuthorizationMetrics(registerer prometheus.Registerer, cfg Config) (*AuthorizationMetrics, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "nexusguard_authorization_decisions_total",
		Help:        "Authorization decisions by outcome and action.",
		ConstLabels: constLabels(cfg),
	}, []string{"decision", "action"})
	if err := register(registerer, &decisions); err != nil {
		return nil, err
	}
	return &AuthorizationMetrics{decisions: decisions}, nil
}

func (m *AuthorizationMetrics) Observe(action string, allowed bool) {
	if m == nil {
		return
	}
	decision := DecisionDeny
	if allowed {
		decision = DecisionAllow
	}
	m.decisions.WithLabelValues(decision, strings.TrimSpace(action)).Inc()
}

// Decisions exposes one counter series, mostly for tests.
func (m *AuthorizationMetrics) Decisions(decision, action string) prometheus.Counter {
	return m.decisions.WithLabelValues(decision, action)
}

// HTTPMetrics records request counts and latency per route template.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics(registerer prometheus.Registerer, cfg Config) (*HTTPMetrics, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "nexusguard_http_requests_total",
		Help:        "HTTP requests by route and status.",
		ConstLabels: constLabels(cfg),
	}, []string{"method", "route", "status_code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "nexusguard_http_request_duration_seconds",
		Help:        "HTTP request latency by route.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels(cfg),
	}, []string{"method", "route"})
	if err := register(registerer, &requests); err != nil {
		return nil, err
	}
	if err := register(registerer, &duration); err != nil {
		return nil, err
	}
	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

// GinMiddleware records every request. Unmatched routes share one label so
// scanners cannot blow up cardinality.
func (m *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "nexusguard"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{"service": serviceName, "env": environment}
}

// register adopts an already registered collector of the same shape so
// repeated construction against one registry is harmless.
func register[T prometheus.Collector](registerer prometheus.Registerer, collector *T) error {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	err := registerer.Register(*collector)
	if err == nil {
		return nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			*collector = existing
			return nil
		}
	}
	return err
}
