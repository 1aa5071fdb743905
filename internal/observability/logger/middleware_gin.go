package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/nexusguard/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const HeaderRequestID = "X-Request-Id"

// MiddlewareConfig controls request logging. ErrorClassifier maps the last
// handler error to a (type, code) pair for the log line.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns the request id and writes one http_request line per
// request once the handler chain finishes.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		line := requestLine{
			route:   c.FullPath(),
			status:  c.Writer.Status(),
			elapsed: time.Since(start),
		}
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			line.errType, line.errCode = cfg.ErrorClassifier(last.Err)
		}

		ce := FromContext(c.Request.Context()).Check(line.level(), "http_request")
		if ce == nil {
			return
		}
		fields := append(line.fields(c), zap.String("method", c.Request.Method))
		if cfg.Debug && line.errType != "" {
			fields = append(fields, zap.Stack("stack"))
		}
		ce.Write(fields...)
	}
}

type requestLine struct {
	route   string
	status  int
	elapsed time.Duration
	errType string
	errCode string
}

// level keeps probes quiet and raises denials to warn so brute-force
// attempts against admin routes stand out.
func (r requestLine) level() zapcore.Level {
	switch {
	case r.status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case r.route == "/health" || r.route == "/metrics":
		return zapcore.DebugLevel
	case r.status == http.StatusUnauthorized, r.status == http.StatusForbidden, r.status == http.StatusTooManyRequests:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func (r requestLine) fields(c *gin.Context) []zap.Field {
	route := r.route
	if route == "" {
		route = "unmatched"
	}
	fields := []zap.Field{
		zap.String("route", route),
		zap.Int("status", r.status),
		zap.Duration("elapsed", r.elapsed),
	}
	// Path parameters carry the tenant and request being acted on.
	if eid := c.Param("eid"); eid != "" {
		fields = append(fields, zap.String("org_eid", eid))
	}
	if id := c.Param("id"); id != "" {
		fields = append(fields, zap.String("join_request_id", id))
	}
	if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
		fields = append(fields, zap.Bool("stream", true))
	}
	if r.errType != "" {
		fields = append(fields, zap.String("error_type", r.errType), zap.String("error_code", r.errCode))
	}
	return fields
}
