package cart

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/fafportal/checkout/pkg/errors"
	"github.com/fafportal/checkout/pkg/logger"
	"github.com/fafportal/checkout/pkg/metrics"
	"go.uber.org/multierr"
)

const (
	defaultIdleTTL         = 30 * time.Minute
	defaultJanitorInterval = time.Minute
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Backend         Backend
	Logger          *logger.Logger
	Metrics         *metrics.CartWriteMetrics
	WriteTimeout    time.Duration
	IdleTTL         time.Duration
	JanitorInterval time.Duration
}

// Registry keeps one Store per portal session id.
type Registry struct {
	opts StoreOptions
	logg *logger.Logger

	idleTTL  time.Duration
	interval time.Duration

	mu     sync.Mutex
	stores map[string]*Store
	now    func() time.Time
}

func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Backend == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart backend is required")
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "cart", Output: io.Discard})
	}
	idle := opts.IdleTTL
	if idle <= 0 {
		idle = defaultIdleTTL
	}
	interval := opts.JanitorInterval
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	return &Registry{
		opts: StoreOptions{
			Backend:      opts.Backend,
			Logger:       logg,
			Metrics:      opts.Metrics,
			WriteTimeout: opts.WriteTimeout,
		},
		logg:     logg,
		idleTTL:  idle,
		interval: interval,
		stores:   make(map[string]*Store),
		now:      time.Now,
	}, nil
}

// Get returns the session's store, creating an empty one on first use.
func (r *Registry) Get(sessionID string) (*Store, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session id required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if store, ok := r.stores[sessionID]; ok {
		return store, nil
	}
	store, err := NewStore(r.opts)
	if err != nil {
		return nil, err
	}
	store.now = r.now
	store.touch()
	r.stores[sessionID] = store
	return store, nil
}

// Drop flushes and forgets the session's store so the next Get starts from an empty cart.
func (r *Registry) Drop(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	store, ok := r.stores[sessionID]
	delete(r.stores, sessionID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return store.Flush(ctx)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// EvictIdle drops every store unused for longer than the idle ttl and returns how many were
// dropped. Stores are flushed before they are forgotten.
func (r *Registry) EvictIdle(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Store
	for id, store := range r.stores {
		if store.LastUsed().Before(cutoff) {
			idle = append(idle, store)
			delete(r.stores, id)
		}
	}
	r.mu.Unlock()

	var errs error
	for _, store := range idle {
		errs = multierr.Append(errs, store.Flush(ctx))
	}
	return len(idle), errs
}

// Run evicts idle stores on every interval until ctx is canceled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted, err := r.EvictIdle(ctx)
			if err != nil {
				r.logg.Error(ctx, "cart.registry.evict_failed", err)
			}
			if evicted > 0 {
				r.logg.Debug(r.logg.WithField(ctx, "evicted", evicted), "cart.registry.evicted")
			}
		}
	}
}

// Shutdown flushes every store.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	stores := make([]*Store, 0, len(r.stores))
	for _, store := range r.stores {
		stores = append(stores, store)
	}
	r.mu.Unlock()

	var errs error
	for _, store := range stores {
		errs = multierr.Append(errs, store.Flush(ctx))
	}
	return errs
}
