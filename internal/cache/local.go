package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const DefaultLocalSize = 10_000

// LocalBackend is an in-process LRU used when no memcached servers are
// configured. Entries expire after the TTL given at construction; the ttl
// passed to Set is ignored.
type LocalBackend struct {
	lru *expirable.LRU[string, []byte]
}

func NewLocalBackend(size int, ttl time.Duration) *LocalBackend {
	if size <= 0 {
		size = DefaultLocalSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LocalBackend{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (b *LocalBackend) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := b.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return value, nil
}

func (b *LocalBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	b.lru.Add(key, stored)
	return nil
}

func (b *LocalBackend) Flush(context.Context) error {
	b.lru.Purge()
	return nil
}

func (b *LocalBackend) Ping(context.Context) error {
	return nil
}

// Len reports the number of live entries.
func (b *LocalBackend) Len() int {
	return b.lru.Len()
}
