package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jtoloui/motorway-takehome-backend/internal/constants"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// Pinger is satisfied by the store and the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store  Pinger
	cache  Pinger
	logger *zap.Logger
}

// NewHealthHandler builds the liveness and readiness handlers. cache may be
// nil.
func NewHealthHandler(store, cache Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{store: store, cache: cache, logger: logger}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "Vehicle State API is healthy",
	})
}

// ReadinessCheck reports 503 when the store cannot be reached. A cache
// failure degrades the response but keeps the service ready, since every
// request can still be answered from the store.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error(fmt.Sprintf("%s Store not ready", constants.APIName()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"store":  "down",
		})
		return
	}

	cacheStatus := "up"
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn(fmt.Sprintf("%s Cache not reachable", constants.APIName()), zap.Error(err))
			cacheStatus = "down"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"store":  "up",
		"cache":  cacheStatus,
	})
}
