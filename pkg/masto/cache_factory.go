package masto

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/hashicorp/go-multierror"
)

// CacheType names a server-info cache backend.
type CacheType string

const (
	// CacheTypeMemory keeps entries in the current process only.
	CacheTypeMemory CacheType = "memory"
	// CacheTypeNATS layers an in-process cache over a shared JetStream KV bucket.
	CacheTypeNATS CacheType = "nats"
	// CacheTypeNone disables caching.
	CacheTypeNone CacheType = "none"
)

// ParseCacheType accepts a backend name in any case.
func ParseCacheType(name string) (CacheType, error) {
	switch t := CacheType(strings.ToLower(strings.TrimSpace(name))); t {
	case CacheTypeMemory, CacheTypeNATS, CacheTypeNone:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCacheType, name)
	}
}

// CacheConfig describes the cache placed in front of server negotiation.
type CacheConfig struct {
	Type CacheType
	// MaxSize bounds the in-process layer. Zero means constants.DefaultCacheSize.
	MaxSize int
	// SweepInterval starts a background sweep of the in-process layer when positive.
	SweepInterval time.Duration
	// NATS is required for CacheTypeNATS.
	NATS *NATSKVConfig
	// TTL is used for the NATS bucket when NATS.TTL is unset.
	TTL time.Duration
}

// NewCacheFromConfig opens the backend named by config. A nil config yields a
// memory cache. ctx bounds the sweeper and the NATS handshake. Backends that
// hold connections implement io.Closer.
func NewCacheFromConfig(ctx context.Context, config *CacheConfig) (Cache, error) {
	if config == nil {
		config = &CacheConfig{Type: CacheTypeMemory}
	}

	switch config.Type {
	case CacheTypeMemory, "":
		return config.memoryLayer(ctx), nil
	case CacheTypeNATS:
		return config.natsLayers(ctx)
	case CacheTypeNone:
		return NoOpCache{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCacheType, config.Type)
	}
}

func (c *CacheConfig) memoryLayer(ctx context.Context) *MemoryCache {
	size := c.MaxSize
	if size <= 0 {
		size = constants.DefaultCacheSize
	}

	memory := NewMemoryCache(size)
	if c.SweepInterval > 0 {
		memory.StartCleanup(ctx, c.SweepInterval)
	}

	return memory
}

func (c *CacheConfig) natsLayers(ctx context.Context) (*CacheChain, error) {
	if c.NATS == nil {
		return nil, ErrNATSConfigRequired
	}

	shared := *c.NATS
	if shared.TTL == 0 {
		shared.TTL = c.TTL
	}

	remote, err := NewNATSKVCache(ctx, &shared)
	if err != nil {
		return nil, err
	}

	return NewCacheChain(c.memoryLayer(ctx), remote), nil
}

// NoOpCache never stores anything.
type NoOpCache struct{}

func (NoOpCache) Get(context.Context, string) (*CacheEntry, error) { return nil, ErrCacheDisabled }

func (NoOpCache) Set(context.Context, string, *CacheEntry) error { return nil }

func (NoOpCache) Delete(context.Context, string) error { return nil }

func (NoOpCache) Clear(context.Context) error { return nil }

func (NoOpCache) Has(context.Context, string) bool { return false }

// CacheBuilder assembles a CacheConfig fluently.
type CacheBuilder struct {
	config CacheConfig
}

// NewCacheBuilder starts from a memory cache.
func NewCacheBuilder() *CacheBuilder {
	return &CacheBuilder{config: CacheConfig{Type: CacheTypeMemory}}
}

func (b *CacheBuilder) WithType(cacheType CacheType) *CacheBuilder {
	b.config.Type = cacheType

	return b
}

func (b *CacheBuilder) WithMaxSize(size int) *CacheBuilder {
	b.config.MaxSize = size

	return b
}

func (b *CacheBuilder) WithSweepInterval(interval time.Duration) *CacheBuilder {
	b.config.SweepInterval = interval

	return b
}

func (b *CacheBuilder) WithNATS(config *NATSKVConfig) *CacheBuilder {
	b.config.NATS = config

	return b
}

func (b *CacheBuilder) WithTTL(ttl time.Duration) *CacheBuilder {
	b.config.TTL = ttl

	return b
}

// Build opens the configured backend.
func (b *CacheBuilder) Build(ctx context.Context) (Cache, error) {
	config := b.config

	return NewCacheFromConfig(ctx, &config)
}

// CacheChain reads through layers in order and writes to all of them. A hit
// in a later layer is copied into the earlier ones.
type CacheChain struct {
	layers []Cache
}

func NewCacheChain(layers ...Cache) *CacheChain {
	return &CacheChain{layers: layers}
}

func (c *CacheChain) Get(ctx context.Context, key string) (*CacheEntry, error) {
	for i, layer := range c.layers {
		entry, err := layer.Get(ctx, key)
		if err != nil {
			continue
		}

		for _, front := range c.layers[:i] {
			_ = front.Set(ctx, key, entry)
		}

		return entry, nil
	}

	return nil, ErrKeyNotFoundInAnyCache
}

func (c *CacheChain) Set(ctx context.Context, key string, entry *CacheEntry) error {
	return c.each(func(layer Cache) error { return layer.Set(ctx, key, entry) })
}

func (c *CacheChain) Delete(ctx context.Context, key string) error {
	return c.each(func(layer Cache) error { return layer.Delete(ctx, key) })
}

func (c *CacheChain) Clear(ctx context.Context) error {
	return c.each(func(layer Cache) error { return layer.Clear(ctx) })
}

func (c *CacheChain) Has(ctx context.Context, key string) bool {
	for _, layer := range c.layers {
		if layer.Has(ctx, key) {
			return true
		}
	}

	return false
}

// Close releases every layer that holds a connection.
func (c *CacheChain) Close() error {
	return c.each(func(layer Cache) error {
		if closer, ok := layer.(io.Closer); ok {
			return closer.Close()
		}

		return nil
	})
}

func (c *CacheChain) each(fn func(Cache) error) error {
	var result *multierror.Error

	for _, layer := range c.layers {
		err := fn(layer)
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
