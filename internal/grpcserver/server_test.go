package grpcserver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

type switchPinger struct {
	down  atomic.Bool
	calls atomic.Int32
}

func (p *switchPinger) Ping(context.Context) error {
	p.calls.Add(1)
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func startServer(t *testing.T, opts Options) (grpc_health_v1.HealthClient, *Server) {
	t.Helper()

	server, err := NewWithAddr("127.0.0.1:0", opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	conn, err := grpc.NewClient(server.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return grpc_health_v1.NewHealthClient(conn), server
}

func checkStatus(t *testing.T, client grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestServer_ServingWhenStoreUp(t *testing.T) {
	store := &switchPinger{}
	client, _ := startServer(t, Options{Store: store, Cache: &switchPinger{}})

	require.Eventually(t, func() bool {
		return checkStatus(t, client, ServiceName) == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, checkStatus(t, client, ""))
}

func TestServer_CacheDownStaysServing(t *testing.T) {
	cache := &switchPinger{}
	cache.down.Store(true)
	client, _ := startServer(t, Options{Store: &switchPinger{}, Cache: cache})

	require.Eventually(t, func() bool {
		return checkStatus(t, client, ServiceName) == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, cache.calls.Load(), int32(1))
}

func TestServer_FollowsStoreAvailability(t *testing.T) {
	store := &switchPinger{}
	store.down.Store(true)
	client, _ := startServer(t, Options{Store: store, ProbeInterval: 20 * time.Millisecond})

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, checkStatus(t, client, ServiceName))

	store.down.Store(false)

	require.Eventually(t, func() bool {
		return checkStatus(t, client, ServiceName) == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewWithAddr_RequiresStore(t *testing.T) {
	_, err := NewWithAddr("127.0.0.1:0", Options{})

	assert.Error(t, err)
}
