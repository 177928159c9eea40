package masto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSKVConfig configures the NATS JetStream key-value cache.
type NATSKVConfig struct {
	// URL of the NATS server. Ignored when Conn is set.
	URL string
	// Conn is an existing connection; the cache does not close it.
	Conn *nats.Conn
	// Bucket name. Defaults to "masto-cache".
	Bucket string
	// TTL applied by the bucket to every value.
	TTL time.Duration
	// Options are passed to nats.Connect.
	Options []nats.Option
}

// NATSKVCache shares cache entries between processes through a JetStream KV bucket.
type NATSKVCache struct {
	conn     *nats.Conn
	ownsConn bool
	kv       jetstream.KeyValue
}

// NewNATSKVCache connects (unless a connection is supplied) and binds the bucket,
// creating it when missing.
func NewNATSKVCache(ctx context.Context, config *NATSKVConfig) (*NATSKVCache, error) {
	if config == nil {
		return nil, ErrNATSConfigRequired
	}

	conn := config.Conn
	ownsConn := false

	if conn == nil {
		url := config.URL
		if url == "" {
			url = nats.DefaultURL
		}

		var err error

		conn, err = nats.Connect(url, config.Options...)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}

		ownsConn = true
	}

	js, err := jetstream.New(conn)
	if err != nil {
		closeOwned(conn, ownsConn)

		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	bucket := config.Bucket
	if bucket == "" {
		bucket = constants.DefaultNATSBucket
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "masto client cache",
		TTL:         config.TTL,
	})
	if err != nil {
		closeOwned(conn, ownsConn)

		return nil, fmt.Errorf("binding KV bucket %s: %w", bucket, err)
	}

	return &NATSKVCache{conn: conn, ownsConn: ownsConn, kv: kv}, nil
}

func closeOwned(conn *nats.Conn, owned bool) {
	if owned {
		conn.Close()
	}
}

// Get returns the entry for key.
func (c *NATSKVCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	value, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}

		return nil, fmt.Errorf("reading %s from KV: %w", key, err)
	}

	var entry CacheEntry

	err = json.Unmarshal(value.Value(), &entry)
	if err != nil {
		return nil, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}

	if entry.Expired(time.Now()) {
		_ = c.Delete(ctx, key)

		return nil, ErrEntryExpired
	}

	return &entry, nil
}

// Set stores entry under key.
func (c *NATSKVCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}

	_, err = c.kv.Put(ctx, key, data)
	if err != nil {
		return fmt.Errorf("writing %s to KV: %w", key, err)
	}

	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *NATSKVCache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("deleting %s from KV: %w", key, err)
	}

	return nil
}

// Clear removes every key in the bucket.
func (c *NATSKVCache) Clear(ctx context.Context) error {
	lister, err := c.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}

		return fmt.Errorf("listing KV keys: %w", err)
	}

	defer func() { _ = lister.Stop() }()

	for key := range lister.Keys() {
		err := c.Delete(ctx, key)
		if err != nil {
			return err
		}
	}

	return nil
}

// Has reports whether key holds an unexpired entry.
func (c *NATSKVCache) Has(ctx context.Context, key string) bool {
	_, err := c.Get(ctx, key)

	return err == nil
}

// Close drains the connection if the cache opened it.
func (c *NATSKVCache) Close() error {
	if !c.ownsConn {
		return nil
	}

	err := c.conn.Drain()
	if err != nil {
		return fmt.Errorf("draining NATS connection: %w", err)
	}

	return nil
}
