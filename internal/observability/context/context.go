// Package context carries request-scoped correlation values.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	orgEIDKey
	identityKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithOrgEID(ctx context.Context, eid string) context.Context {
	return context.WithValue(ctx, orgEIDKey, strings.TrimSpace(eid))
}

func OrgEIDFromContext(ctx context.Context) string {
	return stringValue(ctx, orgEIDKey)
}

// WithIdentity records the caller's opaque identity id.
func WithIdentity(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityKey, strings.TrimSpace(identityID))
}

func IdentityFromContext(ctx context.Context) string {
	return stringValue(ctx, identityKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
