package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	sharedCache "github.com/davicafu/tasknotify/internal/shared/infra/platform/cache"
)

// RedisCache guarda los contadores del feed (no leídas, stats) en Redis.
// Todas las claves se prefijan para poder compartir instancia con otros servicios.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ sharedCache.Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, prefix string, defaultTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: defaultTTL}
}

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // cache miss
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	ttl := c.ttl
	if ttlSecs > 0 {
		ttl = time.Duration(ttlSecs) * time.Second
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Ping comprueba la conexión; main lo usa para decidir el fallback en memoria.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
