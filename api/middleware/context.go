package middleware

import (
	"context"

	"github.com/fafportal/checkout/internal/backend"
)

// SessionIDFromContext returns the portal session id attached by Session.
func SessionIDFromContext(ctx context.Context) string {
	return backend.SessionIDFromContext(ctx)
}

// WithSessionID attaches the portal session id for handlers and outgoing backend calls.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return backend.WithSessionID(ctx, sessionID)
}
