package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const (
	DefaultTimeout = 500 * time.Millisecond
	DefaultRetries = 2

	// MaxTTL is the longest relative expiration memcached accepts; larger
	// values are read as absolute unix times.
	MaxTTL = 30 * 24 * time.Hour
)

// memcacheClient is the subset of *memcache.Client used by MemcacheBackend.
type memcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	FlushAll() error
	Ping() error
}

// MemcacheConfig configures the memcached backend.
type MemcacheConfig struct {
	// Servers is a comma separated host:port list.
	Servers string
	// Timeout bounds each network operation, including connecting.
	Timeout time.Duration
	// Retries is the number of extra attempts after a network error.
	// Misses are never retried.
	Retries      int
	MaxIdleConns int
}

// MemcacheBackend stores entries in memcached.
type MemcacheBackend struct {
	client  memcacheClient
	retries int
}

func NewMemcacheBackend(cfg MemcacheConfig) (*MemcacheBackend, error) {
	servers := splitServers(cfg.Servers)
	if len(servers) == 0 {
		return nil, errors.New("no memcache servers configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	client := memcache.New(servers...)
	client.Timeout = cfg.Timeout
	if cfg.MaxIdleConns > 0 {
		client.MaxIdleConns = cfg.MaxIdleConns
	}
	return newMemcacheBackend(client, cfg.Retries), nil
}

func newMemcacheBackend(client memcacheClient, retries int) *MemcacheBackend {
	return &MemcacheBackend{client: client, retries: retries}
}

func (b *MemcacheBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var item *memcache.Item
	err := b.withRetry(ctx, func() error {
		var err error
		item, err = b.client.Get(key)
		return err
	})
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (b *MemcacheBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.withRetry(ctx, func() error {
		return b.client.Set(&memcache.Item{
			Key:        key,
			Value:      value,
			Expiration: expirationSeconds(ttl),
		})
	})
}

func (b *MemcacheBackend) Flush(ctx context.Context) error {
	return b.withRetry(ctx, b.client.FlushAll)
}

func (b *MemcacheBackend) Ping(ctx context.Context) error {
	return b.withRetry(ctx, b.client.Ping)
}

// withRetry retries op on errors other than the memcache protocol's
// definitive answers (miss, not stored, bad key).
func (b *MemcacheBackend) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= b.retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		err = op()
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

// expirationSeconds converts ttl to memcached's relative expiration, where 0
// means never expire.
func expirationSeconds(ttl time.Duration) int32 {
	switch {
	case ttl > MaxTTL:
		ttl = MaxTTL
	case ttl < time.Second:
		ttl = time.Second
	}
	return int32(ttl / time.Second)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, memcache.ErrCacheMiss),
		errors.Is(err, memcache.ErrNotStored),
		errors.Is(err, memcache.ErrMalformedKey),
		errors.Is(err, memcache.ErrNoServers):
		return false
	}
	return true
}

func splitServers(servers string) []string {
	var out []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
