// Package service provides the shared scaffolding for MyNews HTTP services:
// identity, router, background workers, store health and the standard
// /health and /info routes.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
)

const healthCheckTimeout = 5 * time.Second

// BaseConfig contains shared configuration for all services.
type BaseConfig struct {
	ID      string
	Name    string
	Version string
	// Store is probed by the health check when set.
	Store docstore.Store
	// Router is the subrouter the service mounts its routes on. A fresh
	// router is created when nil.
	Router *mux.Router
	Logger *logging.Logger
}

// BaseService carries the lifecycle shared by every service:
// - safe stop channel management (sync.Once prevents double-close panic)
// - optional hydration hook for loading state on startup
// - background worker management
// - statistics provider for the /info endpoint
type BaseService struct {
	id      string
	name    string
	version string
	router  *mux.Router
	store   docstore.Store
	logger  *logging.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	hydrate func(context.Context) error
	statsFn func() map[string]any

	workers []func(context.Context)

	healthMu        sync.RWMutex
	storeHealthy    bool
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService from shared config.
func NewBase(cfg *BaseConfig) *BaseService {
	router := cfg.Router
	if router == nil {
		router = mux.NewRouter()
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault(cfg.ID)
	}
	return &BaseService{
		id:           cfg.ID,
		name:         cfg.Name,
		version:      cfg.Version,
		router:       router,
		store:        cfg.Store,
		logger:       log,
		stopCh:       make(chan struct{}),
		storeHealthy: true,
	}
}

func (b *BaseService) ID() string { return b.id }
func (b *BaseService) Name() string { return b.name }
func (b *BaseService) Version() string { return b.version }
func (b *BaseService) Router() *mux.Router { return b.router }
func (b *BaseService) Logger() *logging.Logger { return b.logger }
func (b *BaseService) Store() docstore.Store { return b.store }
func (b *BaseService) StopChan() <-chan struct{} { return b.stopCh }

// WithHydrate sets an optional hook executed during Start, before workers
// are launched.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// WithStats sets a statistics provider for the /info endpoint.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// AddWorker registers a background worker started after hydrate completes.
// Workers must return once ctx is done or StopChan is closed.
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

// AddTickerWorker registers a periodic background worker.
func (b *BaseService) AddTickerWorker(interval time.Duration, fn func(context.Context) error) *BaseService {
	worker := func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					b.logger.WithError(err).Warn("worker error")
				}
			}
		}
	}
	b.workers = append(b.workers, worker)
	return b
}

// Start runs hydrate once, then spins workers.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	go func() {
		<-b.stopCh
		cancel()
	}()
	for _, w := range b.workers {
		worker := w
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			worker(workerCtx)
		}()
	}
	b.logger.WithField("workers", len(b.workers)).Info("service started")
	return nil
}

// Stop signals workers and waits for them until ctx expires. It is
// idempotent.
func (b *BaseService) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop %s: %w", b.id, ctx.Err())
	}
}

// WorkerCount returns the number of registered workers.
func (b *BaseService) WorkerCount() int {
	return len(b.workers)
}

// CheckHealth refreshes the cached health state by probing the store.
func (b *BaseService) CheckHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	healthy := true
	if b.store != nil {
		if err := b.store.Health(ctx); err != nil {
			b.logger.WithError(err).Warn("store health check failed")
			healthy = false
		}
	}

	b.healthMu.Lock()
	b.storeHealthy = healthy
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus probes dependencies and returns "healthy" or "unhealthy".
func (b *BaseService) HealthStatus(ctx context.Context) string {
	b.CheckHealth(ctx)
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	if !b.storeHealthy {
		return "unhealthy"
	}
	return "healthy"
}

// HealthDetails describes the most recent health state.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	details := map[string]any{
		"store_connected": b.storeHealthy,
		"last_check":      "",
	}
	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	}

	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.String()
	return details
}
