package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jtoloui/motorway-takehome-backend/internal/cache"
	"github.com/jtoloui/motorway-takehome-backend/internal/constants"
	apperrors "github.com/jtoloui/motorway-takehome-backend/internal/errors"
	"github.com/jtoloui/motorway-takehome-backend/internal/metrics"
	"github.com/jtoloui/motorway-takehome-backend/internal/models"
	"github.com/jtoloui/motorway-takehome-backend/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/jtoloui/motorway-takehome-backend/internal/service")

// DefaultResolveTimeout bounds a shared store resolution once it no longer
// follows the context of the request that started it.
const DefaultResolveTimeout = 10 * time.Second

// StateCache is the cache-aside store in front of the resolution query.
type StateCache interface {
	Get(ctx context.Context, key string) (models.VehicleState, bool)
	Set(ctx context.Context, key string, value models.VehicleState, ttl time.Duration) bool
}

// VehicleStateService resolves the state a vehicle was in at a point in time.
type VehicleStateService struct {
	store    repository.Store
	cache    StateCache
	cacheTTL time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	inflight singleflight.Group

	resolveTimeout time.Duration
}

func NewVehicleStateService(
	store repository.Store,
	stateCache StateCache,
	cacheTTL time.Duration,
	logger *zap.Logger,
	m *metrics.Metrics,
) *VehicleStateService {
	return &VehicleStateService{
		store:    store,
		cache:    stateCache,
		cacheTTL: cacheTTL,
		logger:   logger.Named("VehiclesService"),
		metrics:  m,

		resolveTimeout: DefaultResolveTimeout,
	}
}

// ResolveStateAtTime returns the vehicle with the latest state recorded at or
// before q.At. A cached result is returned without touching the store. On a
// miss the vehicle check and the state lookup run in one transaction, in that
// order, and the committed result is written back to the cache.
//
// Errors are *apperrors.AppError values: validation, vehicle not found, state
// not found, or store unavailable.
func (s *VehicleStateService) ResolveStateAtTime(ctx context.Context, q models.StateQuery) (*models.VehicleState, error) {
	ctx, span := tracer.Start(ctx, "VehicleStateService.ResolveStateAtTime")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("vehicle.id", q.VehicleID),
		attribute.String("vehicle.timestamp", q.Timestamp),
	)

	s.logger.Info(fmt.Sprintf("%s Get Vehicle State By Time", constants.APIName()),
		zap.Int64("vehicle_id", q.VehicleID),
		zap.String("timestamp", q.Timestamp),
	)

	if err := validateQuery(q); err != nil {
		s.metrics.ObserveResolution("invalid")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	key := cache.StateKey(q.VehicleID, q.Timestamp)
	if cached, ok := s.cache.Get(ctx, key); ok {
		s.metrics.ObserveResolution("cache_hit")
		span.SetAttributes(attribute.Bool("cache.hit", true))
		s.logger.Info(fmt.Sprintf("%s Cache hit", constants.APIName()), zap.String("key", key))
		return &cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))
	s.logger.Info(fmt.Sprintf("%s Cache miss", constants.APIName()), zap.String("key", key))

	// Concurrent misses on the same key share one store transaction. The
	// shared call is detached from the caller that started it so one client
	// going away does not fail the others; each caller still stops waiting
	// when its own context ends.
	ch := s.inflight.DoChan(key, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.resolveTimeout)
		defer cancel()
		return s.resolveAndCache(sharedCtx, key, q)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: fmt.Errorf("waiting for vehicle state: %w", ctx.Err())}
	}
	if res.Err != nil {
		appErr := s.mapError(res.Err)
		s.metrics.ObserveResolution(outcome(appErr))
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, appErr.Message)
		return nil, appErr
	}
	if res.Shared {
		s.logger.Debug(fmt.Sprintf("%s Shared in-flight resolution", constants.APIName()), zap.String("key", key))
	}

	state := res.Val.(models.VehicleState)
	s.metrics.ObserveResolution("resolved")
	return &state, nil
}

func (s *VehicleStateService) resolveAndCache(ctx context.Context, key string, q models.StateQuery) (models.VehicleState, error) {
	state, err := repository.WithTransaction(ctx, s.store, func(ctx context.Context, tx repository.Tx) (*models.VehicleState, error) {
		if _, err := tx.GetVehicleByID(ctx, q.VehicleID); err != nil {
			return nil, err
		}
		return tx.GetStateAtTime(ctx, q.VehicleID, q.At)
	})
	if err != nil {
		return models.VehicleState{}, err
	}

	// The lookup has already succeeded; a failed cache write only costs a
	// store round-trip next time.
	if !s.cache.Set(ctx, key, *state, s.cacheTTL) {
		s.logger.Warn(fmt.Sprintf("%s Failed to cache vehicle state", constants.APIName()), zap.String("key", key))
	}
	return *state, nil
}

func (s *VehicleStateService) mapError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case repository.IsVehicleNotFound(err):
		s.logger.Info(fmt.Sprintf("%s Vehicle not found", constants.APIName()), zap.Error(err))
		return apperrors.NewVehicleNotFoundError(err)
	case repository.IsStateNotFound(err):
		s.logger.Info(fmt.Sprintf("%s No state at or before requested time", constants.APIName()), zap.Error(err))
		return apperrors.NewStateNotFoundError(err)
	}

	var transient *repository.TransientError
	if errors.As(err, &transient) {
		s.logger.Error(fmt.Sprintf("%s Store unavailable", constants.APIName()),
			zap.Bool("timeout", transient.Timeout),
			zap.Error(err),
		)
		return apperrors.NewStoreError(err, transient.Timeout)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.Error(fmt.Sprintf("%s Request context ended", constants.APIName()), zap.Error(err))
		return apperrors.NewStoreError(err, true)
	}

	s.logger.Error(fmt.Sprintf("%s Error resolving vehicle state", constants.APIName()), zap.Error(err))
	return apperrors.NewInternalError(err)
}

func validateQuery(q models.StateQuery) *apperrors.AppError {
	if q.VehicleID <= 0 {
		return apperrors.NewValidationError("id", "Invalid input")
	}
	if q.Timestamp == "" || q.At.IsZero() {
		return apperrors.NewValidationError("timestamp", "Invalid datetime")
	}
	return nil
}

func outcome(err *apperrors.AppError) string {
	switch err.Code {
	case apperrors.CodeVehicleNotFound:
		return "vehicle_not_found"
	case apperrors.CodeStateNotFound:
		return "state_not_found"
	case apperrors.CodeStoreUnavailable:
		return "store_unavailable"
	default:
		return "error"
	}
}
