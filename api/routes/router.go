package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fafportal/checkout/api/controllers"
	cartcontrollers "github.com/fafportal/checkout/api/controllers/cart"
	purchasecontrollers "github.com/fafportal/checkout/api/controllers/purchase"
	"github.com/fafportal/checkout/api/middleware"
	"github.com/fafportal/checkout/pkg/config"
	"github.com/fafportal/checkout/pkg/logger"
	"github.com/fafportal/checkout/pkg/redis"
)

// Store is the redis surface used by the HTTP layer.
type Store interface {
	controllers.Pinger
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Deps carries the collaborators mounted on the router.
type Deps struct {
	Carts    cartcontrollers.Carts
	Catalog  cartcontrollers.Catalog
	Checkout purchasecontrollers.Preparer
	Settler  purchasecontrollers.Settler
	Redis    Store
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	cartWrites := middleware.RateLimit(
		middleware.NewRateLimitPolicy("cart_writes", cfg.RateLimit.Window, cfg.RateLimit.CartWrites),
		deps.Redis,
		logg,
	)

	idempotency := middleware.Idempotency(deps.Redis, cfg.Checkout.IdempotencyTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, deps.Redis))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(cfg.Backend.SessionCookie, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(deps.Carts, logg))
			r.Group(func(r chi.Router) {
				r.Use(cartWrites)
				// Inline so the full route pattern is resolved before the guard runs.
				r.With(idempotency).Post("/items", cartcontrollers.CartAddItem(deps.Carts, logg))
				r.Post("/lines/{productId}/increment", cartcontrollers.CartIncrement(deps.Carts, logg))
				r.Post("/lines/{productId}/decrement", cartcontrollers.CartDecrement(deps.Carts, logg))
				r.Delete("/lines/{productId}", cartcontrollers.CartRemove(deps.Carts, logg))
			})
			r.Post("/lines/{productId}/toggle", cartcontrollers.CartToggle(deps.Carts, logg))
			r.Post("/selection/toggle-all", cartcontrollers.CartToggleAll(deps.Carts, logg))
			r.Post("/checkout", cartcontrollers.CartCheckout(deps.Carts, logg))
		})

		r.Route("/products/{productId}", func(r chi.Router) {
			r.Get("/", cartcontrollers.ProductDetail(deps.Catalog, logg))
			r.Post("/buy-now", cartcontrollers.ProductBuyNow(deps.Catalog, logg))
		})

		r.Get("/purchase", purchasecontrollers.PurchaseFetch(deps.Checkout, logg))
		r.Post("/purchase-complete", purchasecontrollers.PurchaseComplete(deps.Settler, logg))
	})

	return r
}
