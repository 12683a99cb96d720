package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/nexlink/pkg/app"
	"github.com/wadjakorntonsri/nexlink/pkg/config"
	"github.com/wadjakorntonsri/nexlink/pkg/logger"
)

var mux http.Handler

func init() {
	cfg := config.Load()

	zl, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}

	// Note: On Vercel, db.sqlite is ephemeral unless using a remote SQL/Turso URL in DATABASE_URL
	a, err := app.New(cfg, zl)
	if err != nil {
		panic(err)
	}
	mux = a.Handler
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
