package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Backend   BackendConfig
	Redis     RedisConfig
	Checkout  CheckoutConfig
	Cart      CartConfig
	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Backend.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(cfg.Backend.Timeout); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FAF_APP_ENV" required:"true"`
	Port         string `envconfig:"FAF_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FAF_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FAF_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// HTTPConfig holds browser-facing server settings.
type HTTPConfig struct {
	AllowedOrigins  []string      `envconfig:"FAF_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ReadTimeout     time.Duration `envconfig:"FAF_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"FAF_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"FAF_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

// BackendConfig points at the portal REST backend that owns carts, catalog, sessions and the points ledger.
type BackendConfig struct {
	BaseURL       string        `envconfig:"FAF_BACKEND_BASE_URL" required:"true"`
	Timeout       time.Duration `envconfig:"FAF_BACKEND_TIMEOUT" default:"10s"`
	SessionCookie string        `envconfig:"FAF_BACKEND_SESSION_COOKIE" default:"JSESSIONID"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FAF_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FAF_REDIS_ADDR"`
	Password     string        `envconfig:"FAF_REDIS_PASSWORD"`
	DB           int           `envconfig:"FAF_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FAF_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FAF_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FAF_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FAF_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FAF_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type CheckoutConfig struct {
	IdempotencyTTL time.Duration `envconfig:"FAF_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
	SettleLockTTL  time.Duration `envconfig:"FAF_CHECKOUT_SETTLE_LOCK_TTL" default:"30s"`
}

// validate keeps the settle marker alive across the balance check and the settlement call,
// each of which may take up to the backend timeout.
func (c CheckoutConfig) validate(backendTimeout time.Duration) error {
	if c.SettleLockTTL <= 2*backendTimeout {
		return fmt.Errorf("%s (%s) must exceed twice %s (%s)",
			EnvSettleLockTTL, c.SettleLockTTL, EnvBackendTimeout, backendTimeout)
	}
	return nil
}

type CartConfig struct {
	IdleTTL         time.Duration `envconfig:"FAF_CART_IDLE_TTL" default:"30m"`
	WriteTimeout    time.Duration `envconfig:"FAF_CART_WRITE_TIMEOUT" default:"10s"`
	JanitorInterval time.Duration `envconfig:"FAF_CART_JANITOR_INTERVAL" default:"1m"`
}

type RateLimitConfig struct {
	Window     time.Duration `envconfig:"FAF_RATE_LIMIT_WINDOW" default:"1m"`
	CartWrites int           `envconfig:"FAF_RATE_LIMIT_CART_WRITES" default:"120"`
}

func (b *BackendConfig) validate() error {
	trimmed := strings.TrimRight(strings.TrimSpace(b.BaseURL), "/")
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvBackendBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url", EnvBackendBaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", EnvBackendBaseURL)
	}
	b.BaseURL = trimmed
	if strings.TrimSpace(b.SessionCookie) == "" {
		b.SessionCookie = DefaultSessionCookie
	}
	return nil
}
