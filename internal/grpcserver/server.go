// Package grpcserver exposes the standard gRPC health service, backed by
// periodic store and cache probes.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jtoloui/motorway-takehome-backend/internal/constants"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	// ServiceName is the health-check service name for the state API.
	ServiceName = "vehicle-state-api"

	defaultProbeInterval = 10 * time.Second
	probeTimeout         = 2 * time.Second
)

// Pinger is satisfied by the store and the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the health probes. Cache may be nil.
type Options struct {
	Store         Pinger
	Cache         Pinger
	ProbeInterval time.Duration
	Logger        *zap.Logger
}

// Server hosts the gRPC health service.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	opts       Options
	logger     *zap.Logger
}

// New creates a server listening on the provided port.
func New(port int, opts Options) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port), opts)
}

// NewWithAddr creates a server for the provided address.
func NewWithAddr(addr string, opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("store pinger is required")
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		opts:       opts,
		logger:     opts.Logger.Named("HealthServer"),
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve probes the dependencies and serves gRPC until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}

	s.probe(ctx)
	go s.probeLoop(ctx)

	s.logger.Info(fmt.Sprintf("%s gRPC health server listening", constants.APIName()), zap.String("address", s.Addr()))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// Close stops the server immediately.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.health.Shutdown()
	s.grpcServer.Stop()
	_ = s.listener.Close()
}

func (s *Server) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

// probe marks the service SERVING when the store answers. The cache is
// optional on the request path, so a cache failure is only logged.
func (s *Server) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.opts.Store.Ping(ctx); err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		s.logger.Warn(fmt.Sprintf("%s Store probe failed", constants.APIName()), zap.Error(err))
	}
	if s.opts.Cache != nil {
		if err := s.opts.Cache.Ping(ctx); err != nil {
			s.logger.Warn(fmt.Sprintf("%s Cache probe failed", constants.APIName()), zap.Error(err))
		}
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
