package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/fafportal/checkout/api/routes"
	"github.com/fafportal/checkout/internal/backend"
	"github.com/fafportal/checkout/internal/cart"
	"github.com/fafportal/checkout/internal/checkout"
	"github.com/fafportal/checkout/internal/purchase"
	"github.com/fafportal/checkout/pkg/config"
	"github.com/fafportal/checkout/pkg/logger"
	"github.com/fafportal/checkout/pkg/metrics"
	"github.com/fafportal/checkout/pkg/redis"
)

const defaultLanguage = "ko"

func main() {
	logg := logger.New(logger.Options{ServiceName: "checkout-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "checkout-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithField(context.Background(), "env", cfg.App.Env)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	portal, err := backend.NewClient(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithSessionCookie(cfg.Backend.SessionCookie),
	)
	requireResource(ctx, logg, "portal backend client", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	carts, err := cart.NewRegistry(cart.RegistryOptions{
		Backend:         portal,
		Logger:          logg,
		Metrics:         metrics.NewCartWriteMetrics(registry),
		WriteTimeout:    cfg.Cart.WriteTimeout,
		IdleTTL:         cfg.Cart.IdleTTL,
		JanitorInterval: cfg.Cart.JanitorInterval,
	})
	requireResource(ctx, logg, "cart registry", err)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Backend:  portal,
		Logger:   logg,
		Language: defaultLanguage,
	})
	requireResource(ctx, logg, "checkout service", err)

	finalizer, err := purchase.NewFinalizer(purchase.FinalizerParams{
		Backend:        portal,
		Records:        redisClient,
		Carts:          carts,
		Logger:         logg,
		Metrics:        metrics.NewSettlementMetrics(registry),
		IdempotencyTTL: cfg.Checkout.IdempotencyTTL,
		LockTTL:        cfg.Checkout.SettleLockTTL,
		Language:       defaultLanguage,
	})
	requireResource(ctx, logg, "purchase finalizer", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Carts:    carts,
			Catalog:  checkoutService,
			Checkout: checkoutService,
			Settler:  finalizer,
			Redis:    redisClient,
			Gatherer: registry,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go carts.Run(runCtx)

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(runCtx, "addr", addr), "starting checkout api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	logg.Info(ctx, "shutting down checkout api server")
	if err := multierr.Combine(
		server.Shutdown(shutdownCtx),
		carts.Shutdown(shutdownCtx),
	); err != nil {
		logg.Error(ctx, "unclean shutdown", err)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
