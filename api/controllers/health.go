package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/crsmanager/crs-backend/api/responses"
	"github.com/crsmanager/crs-backend/internal/cache"
	"github.com/crsmanager/crs-backend/pkg/config"
	"github.com/crsmanager/crs-backend/pkg/db"
	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
	"github.com/crsmanager/crs-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CRS-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready once the store answers, Redis answers when it is
// configured, and the cache has completed its first load. redisP may be nil.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP db.Pinger, c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CRS-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		failed := false
		record := func(name string, err error) {
			if err != nil {
				checks[name] = err.Error()
				failed = true
				return
			}
			checks[name] = "ok"
		}

		if dbP != nil {
			record("database", dbP.Ping(ctx))
		}
		if redisP != nil {
			record("redis", redisP.Ping(ctx))
		}
		if c != nil {
			var err error
			if !c.Loaded() {
				err = pkgerrors.New(pkgerrors.CodeDependency, "cache not loaded")
			}
			record("cache", err)
		}

		if failed {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "service not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
