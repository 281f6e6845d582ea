package config

const (
	EnvPrefix = "FAF"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultSessionCookie = "JSESSIONID"

	EnvAppEnv            = "FAF_APP_ENV"
	EnvPort              = "FAF_APP_PORT"
	EnvBackendBaseURL    = "FAF_BACKEND_BASE_URL"
	EnvBackendTimeout    = "FAF_BACKEND_TIMEOUT"
	EnvBackendCookie     = "FAF_BACKEND_SESSION_COOKIE"
	EnvRedisURL          = "FAF_REDIS_URL"
	EnvIdempotencyTTL    = "FAF_CHECKOUT_IDEMPOTENCY_TTL"
	EnvSettleLockTTL     = "FAF_CHECKOUT_SETTLE_LOCK_TTL"
	EnvCartIdleTTL       = "FAF_CART_IDLE_TTL"
	EnvRateLimitWindow   = "FAF_RATE_LIMIT_WINDOW"
	EnvRateLimitCartHits = "FAF_RATE_LIMIT_CART_WRITES"
	EnvCORSOrigins       = "FAF_CORS_ALLOWED_ORIGINS"
)
