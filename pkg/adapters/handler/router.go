package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/nexlink/pkg/config"
	"go.uber.org/zap"
)

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, svc Services, logger *zap.Logger) http.Handler {
	h := NewHTTPHandler(svc, cfg.BaseURL, cfg.IsProduction(), logger)
	mw := NewMiddleware(cfg, logger)
	authHandler := NewAuthHandler(cfg, logger)

	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /{short_code}", h.Redirect)
	mux.HandleFunc("GET /auth/google/login", authHandler.Login)
	mux.HandleFunc("GET /auth/google/callback", authHandler.Callback)
	mux.HandleFunc("GET /auth/logout", authHandler.Logout)

	// Anonymous or signed in
	mux.Handle("POST /shorten", mw.OptionalAuth(http.HandlerFunc(h.Shorten)))
	mux.Handle("GET /api/v1/recent", mw.OptionalAuth(http.HandlerFunc(h.Recent)))

	// Owner only
	mux.Handle("GET /analytics/{short_code}", mw.AuthMiddleware(http.HandlerFunc(h.Analytics)))
	mux.Handle("GET /qr/{short_code}", mw.AuthMiddleware(http.HandlerFunc(h.QR)))

	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("GET /api/v1/links", h.List)
	mux.Handle("/api/v1/", mw.AuthMiddleware(protectedMux))

	return mw.RequestLogger(mux)
}
