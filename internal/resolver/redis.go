package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"
)

// RedisCache is an optional shared-cache backing for hostname lookups,
// adapted from the teacher's store/redis TorrentStore: a thin HSet/HGetAll
// wrapper keyed by IP, letting multiple bridge instances share one
// resolver cache instead of each keeping an independent in-process LRU.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache dials a redis instance at addr.
func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func hostnameKey(ip string) string { return fmt.Sprintf("resolver:%s", ip) }

// Get returns the cached hostname for ip, if present and unexpired.
func (c *RedisCache) Get(ip string) (hostname string, ok bool, found bool) {
	v, err := c.client.HGetAll(hostnameKey(ip)).Result()
	if err != nil || len(v) == 0 {
		return "", false, false
	}
	expires, err := time.Parse(time.RFC3339, v["expires"])
	if err != nil || time.Now().After(expires) {
		return "", false, false
	}
	return v["hostname"], v["ok"] == "1", true
}

// Set stores a resolved (or failed) lookup with its own expiry.
func (c *RedisCache) Set(ip, hostname string, ok bool, expires time.Time) error {
	okVal := "0"
	if ok {
		okVal = "1"
	}
	return c.client.HSet(hostnameKey(ip), map[string]interface{}{
		"hostname": hostname,
		"ok":       okVal,
		"expires":  expires.Format(time.RFC3339),
	}).Err()
}

// Close releases the underlying redis connection pool.
func (c *RedisCache) Close() error { return c.client.Close() }

var errCachedFailure = errors.New("resolver: cached failed lookup")

// WithRedisCache makes the Resolver consult/populate a shared RedisCache in
// addition to its in-process LRU, checked before falling through to a real
// lookup and updated alongside the local cache entry.
func WithRedisCache(cache *RedisCache) Option {
	return func(r *Resolver) {
		inner := r.lookupHost
		r.lookupHost = func(ctx context.Context, ip string) (string, error) {
			if hostname, ok, found := cache.Get(ip); found {
				if ok {
					return hostname, nil
				}
				return "", errCachedFailure
			}
			name, err := inner(ctx, ip)
			cache.Set(ip, name, err == nil, time.Now().Add(time.Hour))
			return name, err
		}
	}
}
