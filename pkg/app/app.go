// Package app wires the adapters and services into a runnable handler.
package app

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/wadjakorntonsri/nexlink/pkg/adapters/cache/memory"
	"github.com/wadjakorntonsri/nexlink/pkg/adapters/cache/redis"
	"github.com/wadjakorntonsri/nexlink/pkg/adapters/handler"
	"github.com/wadjakorntonsri/nexlink/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/nexlink/pkg/config"
	"github.com/wadjakorntonsri/nexlink/pkg/core/services"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
	"go.uber.org/zap"
)

type App struct {
	Handler  http.Handler
	Repo     *sqlite.SQLiteRepository
	Recorder *services.ClickRecorder

	closeCache func() error
	logger     *zap.Logger
}

// New opens the store and cache and builds the router.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}

	cache, closeCache, err := newCache(cfg, logger)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	links := services.NewLinkService(repo, logger)
	recorder := services.NewClickRecorder(repo, cfg.ClickWorkers, cfg.ClickBuffer, logger)

	router := handler.NewRouter(cfg, handler.Services{
		Links:     links,
		Resolver:  services.NewResolver(repo, cache, cfg.CacheTTL, logger),
		Tracker:   recorder,
		Analytics: services.NewAnalyticsService(links, repo, logger),
		QR:        services.NewQRService(links),
		Cache:     cache,
	}, logger)

	return &App{
		Handler:    router,
		Repo:       repo,
		Recorder:   recorder,
		closeCache: closeCache,
		logger:     logger,
	}, nil
}

// Close drains pending clicks, then releases the cache and the store.
func (a *App) Close(ctx context.Context) error {
	if err := a.Recorder.Close(ctx); err != nil {
		a.logger.Error("click recorder did not drain", zap.Error(err))
	}
	recorded, failed := a.Recorder.Stats()
	a.logger.Info("click recorder stopped", zap.Int64("recorded", recorded), zap.Int64("failed", failed))

	if err := a.closeCache(); err != nil {
		a.logger.Warn("closing cache failed", zap.Error(err))
	}
	return a.Repo.Close()
}

// newCache selects Redis when REDIS_URL is set and an in-process cache otherwise.
func newCache(cfg *config.Config, logger *zap.Logger) (ports.Cache, func() error, error) {
	if cfg.RedisURL == "" {
		logger.Info("using in-process cache")
		return memory.NewCache(cfg.CacheTTL), func() error { return nil }, nil
	}

	cache, err := redis.CreateCache(cfg.RedisURL, cfg.CacheTimeout)
	if err != nil {
		return nil, nil, errors.Wrap(err, "configure redis")
	}
	if err := cache.Ping(context.Background()); err != nil {
		// Redirects fall back to the store until Redis answers.
		logger.Warn("redis not reachable at startup", zap.Error(err))
	}
	return cache, cache.Close, nil
}
