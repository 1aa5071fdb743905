package tracing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/nexusguard/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	attrOrgEID        = attribute.Key("nexusguard.org_eid")
	attrJoinRequestID = attribute.Key("nexusguard.join_request_id")
	attrRequestID     = attribute.Key("nexusguard.request_id")
)

// GinMiddleware opens a server span per request, continuing any upstream
// trace. The span is renamed to the matched route once it is known.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("github.com/smallbiznis/nexusguard/http")
	return func(c *gin.Context) {
		parent := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(parent, c.Request.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(semconv.HTTPRequestMethodKey.String(c.Request.Method)),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		attrs := []attribute.KeyValue{semconv.HTTPResponseStatusCode(status)}
		if route := c.FullPath(); route != "" {
			span.SetName(c.Request.Method + " " + route)
			attrs = append(attrs, semconv.HTTPRoute(route))
		}
		if id := obscontext.RequestIDFromContext(ctx); id != "" {
			attrs = append(attrs, attrRequestID.String(id))
		}
		if eid := c.Param("eid"); eid != "" {
			attrs = append(attrs, attrOrgEID.String(eid))
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, attrJoinRequestID.String(id))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status < http.StatusInternalServerError {
			return
		}
		if last := c.Errors.Last(); last != nil {
			span.RecordError(SafeError(last.Err))
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
