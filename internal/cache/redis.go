package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/legalpub/internal/model"
)

// DefaultKeyPrefix namespaces enrichment entries in a shared Redis.
const DefaultKeyPrefix = "legalpub:enrichment:"

// Redis is a Cache shared across processes. Expiry is delegated to Redis.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps an existing go-redis client.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "cache: redis ping")
	}
	return NewRedis(client, prefix), nil
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) (*model.EnrichmentPayload, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "cache: redis get %s", key)
	}
	var p model.EnrichmentPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, eris.Wrapf(err, "cache: decode %s", key)
	}
	return &p, true, nil
}

// Put implements Cache.
func (r *Redis) Put(ctx context.Context, key string, payload *model.EnrichmentPayload, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrapf(err, "cache: encode %s", key)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return eris.Wrapf(err, "cache: redis set %s", key)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
