package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jtoloui/motorway-takehome-backend/internal/metrics"
	"github.com/jtoloui/motorway-takehome-backend/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	err error
}

func (b failingBackend) Get(context.Context, string) ([]byte, error)              { return nil, b.err }
func (b failingBackend) Set(context.Context, string, []byte, time.Duration) error { return b.err }
func (b failingBackend) Flush(context.Context) error                              { return b.err }
func (b failingBackend) Ping(context.Context) error                               { return b.err }

func sampleState() models.VehicleState {
	return models.VehicleState{
		ID:        3,
		Make:      "VW",
		Model:     "GOLF",
		State:     "sold",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestCache(t *testing.T, backend Backend) (*VehicleStateCache, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	c, err := NewVehicleStateCache(backend, Options{Metrics: m})
	require.NoError(t, err)
	return c, m
}

func TestStateKey_UsesTimestampLiteral(t *testing.T) {
	assert.Equal(t, "vehicle-state-3-2024-09-11T17:21:37+00:00", StateKey(3, "2024-09-11T17:21:37+00:00"))
	assert.NotEqual(t, StateKey(3, "2024-09-11T17:21:37+00:00"), StateKey(3, "2024-09-11T17:21:37Z"))
}

func TestCache_SetThenGet(t *testing.T) {
	c, m := newTestCache(t, NewLocalBackend(16, time.Minute))
	ctx := context.Background()

	ok := c.Set(ctx, "k", sampleState(), 0)
	require.True(t, ok)

	got, hit := c.Get(ctx, "k")
	require.True(t, hit)
	assert.Equal(t, sampleState(), got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheWrites.WithLabelValues("ok")))
}

func TestCache_MissIsAbsent(t *testing.T) {
	c, m := newTestCache(t, NewLocalBackend(16, time.Minute))

	_, hit := c.Get(context.Background(), "absent")

	assert.False(t, hit)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")))
}

func TestCache_MalformedPayloadIsMiss(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "not-json"},
		{name: "missing state", payload: `{"id":3,"make":"VW","model":"GOLF","timestamp":"2024-01-01T00:00:00Z"}`},
		{name: "wrong id type", payload: `{"id":"3","make":"VW","model":"GOLF","state":"sold","timestamp":"2024-01-01T00:00:00Z"}`},
		{name: "unexpected field", payload: `{"id":3,"make":"VW","model":"GOLF","state":"sold","timestamp":"2024-01-01T00:00:00Z","extra":1}`},
		{name: "bad timestamp", payload: `{"id":3,"make":"VW","model":"GOLF","state":"sold","timestamp":"yesterday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewLocalBackend(16, time.Minute)
			c, m := newTestCache(t, backend)
			ctx := context.Background()
			require.NoError(t, backend.Set(ctx, "k", []byte(tt.payload), time.Minute))

			_, hit := c.Get(ctx, "k")

			assert.False(t, hit)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("invalid")))
		})
	}
}

func TestCache_BackendErrorsNeverPropagate(t *testing.T) {
	c, m := newTestCache(t, failingBackend{err: errors.New("i/o timeout")})
	ctx := context.Background()

	_, hit := c.Get(ctx, "k")
	ok := c.Set(ctx, "k", sampleState(), time.Minute)

	assert.False(t, hit)
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheWrites.WithLabelValues("error")))
}

func TestCache_Flush(t *testing.T) {
	backend := NewLocalBackend(16, time.Minute)
	c, _ := newTestCache(t, backend)
	ctx := context.Background()
	require.True(t, c.Set(ctx, "a", sampleState(), 0))
	require.True(t, c.Set(ctx, "b", sampleState(), 0))

	require.NoError(t, c.Flush(ctx))

	assert.Equal(t, 0, backend.Len())
	_, hit := c.Get(ctx, "a")
	assert.False(t, hit)
}

func TestCache_FlushErrorIsReturned(t *testing.T) {
	c, _ := newTestCache(t, failingBackend{err: errors.New("down")})

	assert.Error(t, c.Flush(context.Background()))
}

func TestCache_EncodedPayloadIsStable(t *testing.T) {
	backend := NewLocalBackend(16, time.Minute)
	c, _ := newTestCache(t, backend)
	ctx := context.Background()
	require.True(t, c.Set(ctx, "k", sampleState(), 0))

	raw, err := backend.Get(ctx, "k")

	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"make":"VW","model":"GOLF","state":"sold","timestamp":"2024-01-01T00:00:00Z"}`, string(raw))
}

func TestLocalBackend_Expires(t *testing.T) {
	backend := NewLocalBackend(16, 50*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, "k", []byte("v"), 0))

	_, err := backend.Get(ctx, "k")
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	_, err = backend.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestLocalBackend_CopiesValue(t *testing.T) {
	backend := NewLocalBackend(16, time.Minute)
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, backend.Set(ctx, "k", value, 0))

	value[0] = 'z'

	got, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}
