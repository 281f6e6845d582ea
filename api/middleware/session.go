package middleware

import (
	"net/http"
	"strings"

	"github.com/fafportal/checkout/api/responses"
	pkgerrors "github.com/fafportal/checkout/pkg/errors"
	"github.com/fafportal/checkout/pkg/logger"
	pkgredis "github.com/fafportal/checkout/pkg/redis"
)

// Session requires the portal session cookie and attaches its value to the request context.
func Session(cookieName string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || strings.TrimSpace(cookie.Value) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "portal session required"))
				return
			}

			sessionID := strings.TrimSpace(cookie.Value)
			ctx := WithSessionID(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionHint(sessionID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionHint keeps the session id out of logs while still correlating requests.
func sessionHint(sessionID string) string {
	return pkgredis.HashID(sessionID)[:12]
}
