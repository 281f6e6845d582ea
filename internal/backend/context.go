package backend

import "context"

type sessionKey struct{}

// WithSessionID attaches the portal session id that outgoing calls forward as a cookie.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionKey{}).(string); ok {
		return v
	}
	return ""
}
