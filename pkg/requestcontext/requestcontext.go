// Package requestcontext carries request-scoped values (request ID, resolved
// caller, client metadata, request time) through context.Context.
package requestcontext

import (
	"context"
	"time"

	id "medvault/pkg/domain"
)

type (
	requestIDKey   struct{}
	callerKey      struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestTimeKey struct{}
)

// WithRequestID stores the request correlation ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation ID or "" outside HTTP requests.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithCaller stores the identity resolved by the auth middleware.
func WithCaller(ctx context.Context, caller id.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// Caller returns the resolved identity. ok is false when no auth middleware ran.
func Caller(ctx context.Context) (id.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(id.Caller)
	return c, ok && !c.SubjectID.IsNil()
}

// WithClientMetadata stores the client IP and raw User-Agent header.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(userAgentKey{}).(string); ok {
		return v
	}
	return ""
}

// WithTime pins "now" for the rest of the request.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the request-scoped time, falling back to time.Now() for workers,
// CLI commands and tests that never ran the middleware.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
