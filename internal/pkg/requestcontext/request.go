// Package requestcontext carries request-scoped identifiers on a
// context.Context so logs written deep in a call chain can be correlated
// with the HTTP request that caused them.
package requestcontext

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	userIDKey
)

// WithRequestID returns ctx carrying the request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id of ctx, or ""
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithUserID returns ctx carrying the authenticated user id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user id of ctx, or ""
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
