// Package memory is the in-process cache used when no Redis is configured.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
)

type Cache struct {
	items *gocache.Cache
}

func NewCache(defaultTTL time.Duration) *Cache {
	return &Cache{items: gocache.New(defaultTTL, 10*time.Minute)}
}

func (c *Cache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return "", ports.ErrCacheMiss
	}
	s, ok := v.(string)
	if !ok {
		return "", ports.ErrCacheMiss
	}
	return s, nil
}

func (c *Cache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.items.Set(key, value, ttl)
	return nil
}

func (c *Cache) Ping(context.Context) error {
	return nil
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.items.ItemCount()
}

var _ ports.Cache = (*Cache)(nil)
