package server

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jtoloui/motorway-takehome-backend/internal/cache"
	"github.com/jtoloui/motorway-takehome-backend/internal/config"
	"github.com/jtoloui/motorway-takehome-backend/internal/constants"
	"github.com/jtoloui/motorway-takehome-backend/internal/metrics"
	"github.com/jtoloui/motorway-takehome-backend/internal/repository"
	"github.com/jtoloui/motorway-takehome-backend/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App holds one instance of every component for the life of the process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    repository.Store
	Backend  cache.Backend
	Cache    *cache.VehicleStateCache
	Service  *service.VehicleStateService
	Router   *gin.Engine
}

// Option customises NewApp.
type Option func(*appOptions)

type appOptions struct {
	pool *pgxpool.Pool
}

// WithPool makes NewApp reuse an existing Postgres pool instead of opening
// one, as the Lambda entrypoint does.
func WithPool(pool *pgxpool.Pool) Option {
	return func(o *appOptions) { o.pool = pool }
}

// NewApp opens the store and cache selected by cfg and wires the service and
// router on top of them.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, err := openStore(ctx, cfg, logger, m, o.pool)
	if err != nil {
		return nil, err
	}

	backend, err := openCacheBackend(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	stateCache, err := cache.NewVehicleStateCache(backend, cache.Options{
		DefaultTTL: cfg.Cache.TTL,
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	svc := service.NewVehicleStateService(store, stateCache, cfg.Cache.TTL, logger, m)

	router := NewRouter(Dependencies{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Gatherer: registry,
		Service:  svc,
		Store:    store,
		Cache:    stateCache,
	})

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  m,
		Store:    store,
		Backend:  backend,
		Cache:    stateCache,
		Service:  svc,
		Router:   router,
	}, nil
}

// Close releases the store. The cache clients hold no resources that need
// closing.
func (a *App) Close() {
	a.Store.Close()
}

// Seeder returns the store as a repository.Seeder.
func (a *App) Seeder() (repository.Seeder, bool) {
	s, ok := a.Store.(repository.Seeder)
	return s, ok
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, pool *pgxpool.Pool) (repository.Store, error) {
	switch cfg.Database.Driver {
	case repository.DriverSQLite:
		store, err := repository.NewSQLiteStore(ctx, cfg.SQLiteConfig(), logger, m)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info(fmt.Sprintf("%s Using sqlite store", constants.APIName()), zap.String("path", cfg.Database.SQLitePath))
		return store, nil
	default:
		if pool != nil {
			return repository.NewPostgresStoreFromPool(pool, cfg.PostgresConfig(), logger, m), nil
		}
		store, err := repository.NewPostgresStore(ctx, cfg.PostgresConfig(), logger, m)
		if err != nil {
			return nil, err
		}
		logger.Info(fmt.Sprintf("%s Connected to database", constants.APIName()))
		return store, nil
	}
}

func openCacheBackend(cfg *config.Config, logger *zap.Logger) (cache.Backend, error) {
	if cfg.Cache.Servers == "" {
		logger.Info(fmt.Sprintf("%s Using in-process cache", constants.APIName()), zap.Int("size", cfg.Cache.LocalSize))
		return cache.NewLocalBackend(cfg.Cache.LocalSize, cfg.Cache.TTL), nil
	}
	backend, err := cache.NewMemcacheBackend(cfg.MemcacheConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create memcache client: %w", err)
	}
	logger.Info(fmt.Sprintf("%s Using memcached", constants.APIName()), zap.String("servers", cfg.Cache.Servers))
	return backend, nil
}
