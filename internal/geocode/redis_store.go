package geocode

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a CacheStore backed by Redis, for deployments where many API
// replicas should share one provider-response cache.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	// cache writes are best-effort
	_ = r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Close() error { return r.client.Close() }
