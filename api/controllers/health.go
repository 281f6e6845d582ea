package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/fafportal/checkout/api/responses"
	pkgerrors "github.com/fafportal/checkout/pkg/errors"
	"github.com/fafportal/checkout/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is implemented by dependencies that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-FAF-Env", env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when redis answers; settlement idempotency depends on it.
func HealthReady(env string, logg *logger.Logger, redisClient Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-FAF-Env", env)
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			defer cancel()
			if err := redisClient.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
