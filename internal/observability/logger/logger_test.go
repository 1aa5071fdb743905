package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/nexusguard/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(nil, Config{Level: "loud"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithIdentity(ctx, "u1")

	WithContext(ctx, zap.New(core)).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-9" || fields["identity_id"] != "u1" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	router := gin.New()
	router.Use(GinMiddleware(MiddlewareConfig{}))
	router.GET("/api/organizations/:eid/view", func(c *gin.Context) {
		if obscontext.RequestIDFromContext(c.Request.Context()) == "" {
			t.Errorf("request id missing from context")
		}
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/organizations/NX-8820-A/view", nil))

	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id header")
	}
	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	if entries[0].ContextMap()["org_eid"] != "NX-8820-A" {
		t.Fatalf("expected org_eid field, got %v", entries[0].ContextMap())
	}
}

func TestGinMiddlewareKeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware(MiddlewareConfig{}))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM organizations":                   "SELECT",
		"WITH x AS (SELECT 1) UPDATE join_requests SET": "SELECT",
		"  insert into organization_roles values (1)":   "INSERT",
		"":       "UNKNOWN",
		"VACUUM": "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}

func TestIsDuplicateKey(t *testing.T) {
	if !isDuplicateKey(gorm.ErrDuplicatedKey) {
		t.Fatalf("expected gorm duplicate to match")
	}
	if !isDuplicateKey(errors.New("UNIQUE constraint failed: organizations.eid")) {
		t.Fatalf("expected sqlite message to match")
	}
	if isDuplicateKey(errors.New("connection refused")) {
		t.Fatalf("unexpected match")
	}
}

func TestGormTraceLevels(t *testing.T) {
	warn := DefaultGormLogger()
	cases := []struct {
		name    string
		logger  *GormLogger
		err     error
		elapsed time.Duration
		want    zapcore.Level
		logged  bool
	}{
		{"fast query", warn, nil, time.Millisecond, 0, false},
		{"slow query", warn, nil, time.Second, zapcore.WarnLevel, true},
		{"missing row", warn, gormlogger.ErrRecordNotFound, time.Millisecond, 0, false},
		{"eid collision", warn, gorm.ErrDuplicatedKey, time.Millisecond, zapcore.DebugLevel, true},
		{"driver failure", warn, errors.New("connection refused"), time.Millisecond, zapcore.ErrorLevel, true},
		{"silent", NewGormLogger(gormlogger.Silent, 0), errors.New("boom"), time.Second, 0, false},
		{"info mode", NewGormLogger(gormlogger.Info, 0), nil, time.Millisecond, zapcore.DebugLevel, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			level, ok := tc.logger.traceLevel(tc.err, tc.elapsed)
			if ok != tc.logged || (ok && level != tc.want) {
				t.Fatalf("traceLevel = (%v, %v), want (%v, %v)", level, ok, tc.want, tc.logged)
			}
		})
	}
}

func TestGormTraceOmitsParameters(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(gormlogger.Info, 0)
	sql, params := l.ParamsFilter(context.Background(), "SELECT * FROM members WHERE identity_id = ?", "u1")
	if params != nil {
		t.Fatalf("expected params to be dropped, got %v", params)
	}
	l.Trace(context.Background(), time.Now(), func() (string, int64) { return sql, 1 }, nil)

	entries := logs.FilterMessage("gorm.query").All()
	if len(entries) != 1 {
		t.Fatalf("expected one query log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["operation"]; got != "SELECT" {
		t.Fatalf("expected SELECT operation, got %v", got)
	}
}

func TestGinMiddlewareWarnsOnDenial(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	router := gin.New()
	router.Use(GinMiddleware(MiddlewareConfig{ErrorClassifier: func(error) (string, string) {
		return "forbidden", "admin_required"
	}}))
	router.POST("/api/join-requests/:id/approve", func(c *gin.Context) {
		_ = c.Error(errors.New("denied"))
		c.Status(http.StatusForbidden)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/join-requests/42/approve", nil))

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %+v", entries)
	}
	fields := entries[0].ContextMap()
	if fields["join_request_id"] != "42" || fields["error_code"] != "admin_required" {
		t.Fatalf("unexpected fields %v", fields)
	}
}
