package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jtoloui/motorway-takehome-backend/internal/constants"
	"github.com/jtoloui/motorway-takehome-backend/internal/middleware"
	"github.com/jtoloui/motorway-takehome-backend/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/jtoloui/motorway-takehome-backend/internal/handlers")

// StateResolver is the service the vehicle handler delegates to.
type StateResolver interface {
	ResolveStateAtTime(ctx context.Context, q models.StateQuery) (*models.VehicleState, error)
}

type VehicleHandler struct {
	service StateResolver
	logger  *zap.Logger
}

func NewVehicleHandler(service StateResolver, logger *zap.Logger) *VehicleHandler {
	return &VehicleHandler{
		service: service,
		logger:  logger.Named("VehiclesController"),
	}
}

// GetVehicleStateByTime handles GET /api/v1/vehicles/:id/state/:timestamp.
func (h *VehicleHandler) GetVehicleStateByTime(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "getVehicleStateByTime")
	defer span.End()

	id := c.Param("id")
	timestamp := c.Param("timestamp")
	requestID := middleware.GetRequestID(c)
	span.SetAttributes(attribute.String("request.id", requestID))

	h.logger.Info(fmt.Sprintf("%s Get Vehicle State By Time", constants.APIName()),
		zap.String("request_id", requestID),
		zap.String("vehicle_id", id),
		zap.String("timestamp", timestamp),
	)

	query, err := ParseGetVehicleStateByTimeRequest(id, timestamp)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("%s Invalid request", constants.APIName()),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	state, err := h.service.ResolveStateAtTime(ctx, query)
	if err != nil {
		h.logger.Error(fmt.Sprintf("%s Error: %v", constants.APIName(), err),
			zap.String("request_id", requestID),
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}
