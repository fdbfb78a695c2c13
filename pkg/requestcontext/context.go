// Package requestcontext provides HTTP-independent accessors for request-scoped
// values. Middleware sets them; services read them without importing net/http.
//
// Usage in services:
//
//	requester := requestcontext.Requester(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithRequester(ctx, "ops@gigsafe")
package requestcontext

import (
	"context"
	"time"
)

type (
	requesterKey   struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	clientInfoKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Requester returns the authenticated principal that initiated the request,
// or "" when the request was not authenticated.
func Requester(ctx context.Context) string {
	if v, ok := ctx.Value(requesterKey{}).(string); ok {
		return v
	}
	return ""
}

func WithRequester(ctx context.Context, requester string) context.Context {
	return context.WithValue(ctx, requesterKey{}, requester)
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

// ClientInfo is a short "platform/browser" description parsed from the User-Agent.
func ClientInfo(ctx context.Context) string {
	if v, ok := ctx.Value(clientInfoKey{}).(string); ok {
		return v
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent details.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, clientInfo string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return context.WithValue(ctx, clientInfoKey{}, clientInfo)
}

func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-scoped time.
// Falls back to time.Now() outside a request (background refresh, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
