package services

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/nexlink/pkg/adapters/cache/memory"
	"github.com/wadjakorntonsri/nexlink/pkg/core/domain"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
)

func seedLink(t *testing.T, repo ports.LinkRepository, dest string) *domain.Link {
	t.Helper()
	svc := NewLinkService(repo, testLogger())
	link, err := svc.Shorten(context.Background(), ports.ShortenRequest{OriginalURL: dest})
	require.NoError(t, err)
	return link
}

func TestResolveColdThenWarm(t *testing.T) {
	store := &countingRepo{LinkRepository: newSQLite(t)}
	cache := memory.NewCache(time.Hour)
	resolver := NewResolver(store, cache, 0, testLogger())
	ctx := context.Background()

	link := seedLink(t, store, "https://example.com/landing")

	cold, err := resolver.Resolve(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.lookups.Load())

	warm, err := resolver.Resolve(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.lookups.Load(), "warm hit must not touch the store")

	assert.Equal(t, "https://example.com/landing", cold.URL)
	assert.Equal(t, cold, warm)
	assert.Equal(t, link.ID, warm.LinkID)

	cached, err := cache.Get(ctx, "url_"+link.ShortCode)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"url":"https://example.com/landing"}`, cached)
}

func TestResolveWithCacheDown(t *testing.T) {
	store := newSQLite(t)
	cache := &downCache{}
	resolver := NewResolver(store, cache, time.Hour, testLogger())

	link := seedLink(t, store, "https://example.com/degraded")

	for i := 0; i < 3; i++ {
		target, err := resolver.Resolve(context.Background(), link.ShortCode)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/degraded", target.URL)
	}
	assert.Equal(t, int64(6), cache.calls.Load()) // a get and a failed set each time
}

func TestResolveUnknownCode(t *testing.T) {
	resolver := NewResolver(newSQLite(t), memory.NewCache(time.Hour), time.Hour, testLogger())

	for _, code := range []string{"zzzzz", "", "my alias!", "abcdefghijklmnop"} {
		_, err := resolver.Resolve(context.Background(), code)
		assert.ErrorIs(t, err, domain.ErrNotFound, code)
	}
}

func TestResolveLegacyCacheValue(t *testing.T) {
	store := &countingRepo{LinkRepository: newSQLite(t)}
	cache := memory.NewCache(time.Hour)
	resolver := NewResolver(store, cache, time.Hour, testLogger())
	ctx := context.Background()

	link := seedLink(t, store, "https://example.com/new")
	require.NoError(t, cache.Set(ctx, "url_"+link.ShortCode, "https://example.com/old", time.Hour))

	target, err := resolver.Resolve(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", target.URL)
	assert.Equal(t, link.ID, target.LinkID)
	assert.Equal(t, int64(1), store.lookups.Load())

	// The entry was upgraded, so the next hit agrees and skips the store.
	again, err := resolver.Resolve(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, target, again)
	assert.Equal(t, int64(1), store.lookups.Load())
}

func TestResolveStoreFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failWith = errors.New("database is locked")
	resolver := NewResolver(repo, &downCache{}, time.Hour, testLogger())

	_, err := resolver.Resolve(context.Background(), "abc")
	assert.ErrorIs(t, err, domain.ErrTemporaryFailure)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
