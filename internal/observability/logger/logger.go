package logger

import (
	"context"
	"fmt"
	"strings"

	obscontext "github.com/smallbiznis/nexusguard/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the zap logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string

	// Sampling keeps the first Initial entries per message each second and
	// every Thereafter-th after that. Zero disables sampling.
	SamplingInitial     int
	SamplingThereafter  int
	IncludeStackOnError bool
}

// New builds the process logger and installs it as the zap global. It is
// flushed when the fx app stops.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	levelName := strings.TrimSpace(cfg.Level)
	if levelName == "" {
		levelName = "info"
	}
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoding := "json"
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		encoding = "console"
	}
	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "ts"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    encoder,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields: map[string]interface{}{
			"service": serviceOr(cfg.ServiceName, "nexusguard"),
			"env":     strings.TrimSpace(cfg.Environment),
			"version": strings.TrimSpace(cfg.Version),
		},
	}
	if cfg.SamplingInitial > 0 {
		zapCfg.Sampling = &zap.SamplingConfig{Initial: cfg.SamplingInitial, Thereafter: cfg.SamplingThereafter}
	}

	stackLevel := zapcore.FatalLevel
	if cfg.IncludeStackOnError {
		stackLevel = zapcore.ErrorLevel
	}
	logger, err := zapCfg.Build(zap.AddCaller(), zap.AddStacktrace(stackLevel))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	if lc != nil {
		lc.Append(fx.StopHook(func() {
			_ = logger.Sync()
		}))
	}
	return logger, nil
}

func serviceOr(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}

// FromContext returns a logger enriched with request-scoped fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds the correlation ids carried by ctx to base. Ids that are
// not set are left out.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 5)
	for _, kv := range [...]struct{ key, value string }{
		{"request_id", obscontext.RequestIDFromContext(ctx)},
		{"org_eid", obscontext.OrgEIDFromContext(ctx)},
		{"identity_id", obscontext.IdentityFromContext(ctx)},
	} {
		if kv.value != "" {
			fields = append(fields, zap.String(kv.key, kv.value))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// WithOrg scopes log to one organization.
func WithOrg(log *zap.Logger, eid string) *zap.Logger {
	if log == nil {
		return nil
	}
	return log.With(zap.String("org_eid", strings.TrimSpace(eid)))
}
