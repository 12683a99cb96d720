package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goRedis "github.com/redis/go-redis/v9"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
)

// Cache is a ports.Cache backed by Redis. Every call runs under its own
// timeout; a timeout or connection error is reported as
// ports.ErrCacheUnavailable.
type Cache struct {
	client  goRedis.UniversalClient
	timeout time.Duration
}

func NewCache(client goRedis.UniversalClient, timeout time.Duration) *Cache {
	return &Cache{client: client, timeout: timeout}
}

// CreateCache connects to the Redis instance described by a redis:// URL.
// The initial ping only logs a degraded start: the cache is optional.
func CreateCache(redisURL string, timeout time.Duration) (*Cache, error) {
	opts, err := goRedis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	// -1 disables retries; 0 would mean the library default.
	opts.MaxRetries = -1
	return NewCache(goRedis.NewClient(opts), timeout), nil
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	val, err := c.client.Get(ctx, key).Result()
	if err == goRedis.Nil {
		return "", ports.ErrCacheMiss
	} else if err != nil {
		return "", errors.Wrap(ports.ErrCacheUnavailable, err.Error())
	}
	return val, nil
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrap(ports.ErrCacheUnavailable, err.Error())
	}
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(ports.ErrCacheUnavailable, err.Error())
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

var _ ports.Cache = (*Cache)(nil)
