package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jtoloui/motorway-takehome-backend/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultTTL applies when Set is called without a positive ttl.
const DefaultTTL = 600 * time.Second

// ErrMiss is returned by a Backend when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

var tracer = otel.Tracer("github.com/jtoloui/motorway-takehome-backend/internal/cache")

// Backend stores opaque payloads under string keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Flush(ctx context.Context) error
	Ping(ctx context.Context) error
}

// StateKey derives the cache key for a point-in-time lookup. The timestamp
// is used exactly as the caller wrote it, so two spellings of one instant
// are cached separately.
func StateKey(vehicleID int64, timestampLiteral string) string {
	return fmt.Sprintf("vehicle-state-%d-%s", vehicleID, timestampLiteral)
}

// Cache is a typed cache-aside wrapper around a Backend. It never returns an
// error from the read path: every failure is reported as a miss.
type Cache[V any] struct {
	backend    Backend
	codec      Codec[V]
	defaultTTL time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// Options configures a Cache.
type Options struct {
	DefaultTTL time.Duration
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

func New[V any](backend Backend, codec Codec[V], opts Options) *Cache[V] {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cache[V]{
		backend:    backend,
		codec:      codec,
		defaultTTL: opts.DefaultTTL,
		logger:     opts.Logger.Named("CacheService"),
		metrics:    opts.Metrics,
	}
}

// Get returns the decoded value and true on a hit. Misses, backend errors and
// payloads that fail schema validation all return false.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	ctx, span := tracer.Start(ctx, "cache.get")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key))

	start := time.Now()
	c.logger.Debug("Getting key", zap.String("key", key))

	data, err := c.backend.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		c.metrics.ObserveCacheRequest("miss")
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.logger.Info("Key not found", zap.String("key", key), zap.Duration("elapsed", time.Since(start)))
		return zero, false
	}
	if err != nil {
		c.metrics.ObserveCacheRequest("error")
		span.RecordError(err)
		c.logger.Error("Error getting key", zap.String("key", key), zap.Error(err))
		return zero, false
	}

	value, err := c.codec.Decode(data)
	if err != nil {
		c.metrics.ObserveCacheRequest("invalid")
		span.RecordError(err)
		c.logger.Warn("Discarding malformed cached value", zap.String("key", key), zap.Error(err))
		return zero, false
	}

	c.metrics.ObserveCacheRequest("hit")
	span.SetAttributes(attribute.Bool("cache.hit", true))
	c.logger.Info("Got key", zap.String("key", key), zap.Duration("elapsed", time.Since(start)))
	return value, true
}

// Set stores value under key. It reports success and logs failures; it never
// fails the caller.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) bool {
	ctx, span := tracer.Start(ctx, "cache.set")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key))

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := c.codec.Encode(value)
	if err != nil {
		c.metrics.ObserveCacheWrite("error")
		span.RecordError(err)
		c.logger.Error("Error encoding value", zap.String("key", key), zap.Error(err))
		return false
	}

	c.logger.Info("Setting key", zap.String("key", key), zap.Duration("ttl", ttl))
	if err := c.backend.Set(ctx, key, data, ttl); err != nil {
		c.metrics.ObserveCacheWrite("error")
		span.RecordError(err)
		c.logger.Error("Error setting key", zap.String("key", key), zap.Error(err))
		return false
	}

	c.metrics.ObserveCacheWrite("ok")
	return true
}

// Flush removes every entry. It is an administrative operation and is not
// used on the request path.
func (c *Cache[V]) Flush(ctx context.Context) error {
	if err := c.backend.Flush(ctx); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	c.logger.Info("Cache flushed")
	return nil
}

func (c *Cache[V]) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}
