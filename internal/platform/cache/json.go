package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSONCache stores JSON values under versioned keys. Bumping the namespace
// version invalidates every key built before the bump.
type JSONCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewJSONCache builds a cache. A nil client disables caching.
func NewJSONCache(client *redis.Client, namespace string, ttl time.Duration) *JSONCache {
	return &JSONCache{client: client, namespace: namespace, ttl: ttl}
}

func (c *JSONCache) versionKey() string {
	return c.namespace + ":version"
}

// Version returns the current namespace version, initialising it when missing.
func (c *JSONCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, c.versionKey(), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.versionKey()).Int64()
	}
	return ver, err
}

// Key composes a versioned key from parts.
func (c *JSONCache) Key(ctx context.Context, parts ...string) (string, error) {
	if c == nil {
		return strings.Join(parts, ":"), nil
	}
	joined := strings.Join(append([]string{c.namespace}, parts...), ":")
	if c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// Fetch loads a cached value into dest or fills it with loader.
func (c *JSONCache) Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every key in the namespace.
func (c *JSONCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, c.versionKey()).Err()
}
