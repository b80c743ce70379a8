// Package server assembles the HTTP router shared by the server and Lambda
// entrypoints.
package server

import (
	"github.com/gin-gonic/gin"
	"github.com/jtoloui/motorway-takehome-backend/internal/config"
	"github.com/jtoloui/motorway-takehome-backend/internal/handlers"
	"github.com/jtoloui/motorway-takehome-backend/internal/metrics"
	"github.com/jtoloui/motorway-takehome-backend/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies are the components the router needs. Cache may be nil.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Service  handlers.StateResolver
	Store    handlers.Pinger
	Cache    handlers.Pinger
}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	router.Use(middleware.Logger(deps.Logger, deps.Metrics))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.SecureHeaders())

	vehicleHandler := handlers.NewVehicleHandler(deps.Service, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.Store, deps.Cache, deps.Logger)

	api := router.Group("/api/v1/vehicles")
	// Health and metrics stay public when auth is on.
	api.Use(middleware.JWTAuthMiddleware(deps.Logger, cfg.Auth.Enabled, cfg.Auth.JWTSecret))
	{
		api.GET("/:id/state/:timestamp", vehicleHandler.GetVehicleStateByTime)
	}

	if cfg.IsDevelopment() {
		router.GET("/api/v1/docs", handlers.APIDocs)
	}

	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	router.NoRoute(handlers.NotFound)
	router.NoMethod(handlers.NotFound)

	return router
}
