package services

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/wadjakorntonsri/nexlink/pkg/core/domain"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long a resolved target stays cached.
const DefaultCacheTTL = 24 * time.Hour

// codePattern matches every code the allocator can issue.
var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,15}$`)

// CacheKey is the cache entry name for a short code.
func CacheKey(code string) string {
	return "url_" + code
}

// Resolver is a cache-aside lookup from short code to redirect target.
//
// Cache entries hold the target as JSON (link id and destination), so a hit
// costs no store round trip. A plain URL value, as written by older
// deployments, is treated as a miss and overwritten. Any cache failure is a
// miss.
type Resolver struct {
	repo   ports.LinkRepository
	cache  ports.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewResolver(repo ports.LinkRepository, cache ports.Cache, ttl time.Duration, logger *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, code string) (*domain.Target, error) {
	if !codePattern.MatchString(code) {
		return nil, domain.ErrNotFound
	}

	key := CacheKey(code)
	cached, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		if target, ok := fromCache(cached); ok {
			return target, nil
		}
	case errors.Is(err, ports.ErrCacheMiss):
	default:
		r.logger.Debug("cache unavailable, using store", zap.String("short_code", code), zap.Error(err))
	}

	link, err := r.repo.GetByShortCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		r.logger.Error("resolve from store failed", zap.String("short_code", code), zap.Error(err))
		return nil, errors.Wrap(domain.ErrTemporaryFailure, "resolve")
	}

	target := &domain.Target{LinkID: link.ID, URL: link.OriginalURL}
	r.store(ctx, key, target)
	return target, nil
}

// fromCache decodes a cached value. A legacy URL-only entry is not trusted:
// ok is false and the store answer replaces it.
func fromCache(cached string) (*domain.Target, bool) {
	var target domain.Target
	if err := json.Unmarshal([]byte(cached), &target); err != nil || target.LinkID <= 0 || target.URL == "" {
		return nil, false
	}
	return &target, true
}

func (r *Resolver) store(ctx context.Context, key string, target *domain.Target) {
	b, err := json.Marshal(target)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, string(b), r.ttl); err != nil {
		r.logger.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

var _ ports.RedirectResolver = (*Resolver)(nil)
