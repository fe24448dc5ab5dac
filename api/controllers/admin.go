package controllers

import (
	"net/http"
	"time"

	"github.com/crsmanager/crs-backend/api/middleware"
	"github.com/crsmanager/crs-backend/api/responses"
	"github.com/crsmanager/crs-backend/internal/cache"
	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
	"github.com/crsmanager/crs-backend/pkg/logger"
)

// AdminReloadCache rebuilds the cache from src. A failed reload leaves the
// previous contents in place.
func AdminReloadCache(c *cache.Cache, src cache.Source, timeout time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c == nil || src == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cache unavailable"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "admin_subject", middleware.AdminSubjectFromContext(ctx))
			logg.Info(ctx, "cache reload requested")
		}

		if err := c.Reload(ctx, src, timeout); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, c.Stats())
	}
}

func AdminCacheStats(c *cache.Cache, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cache unavailable"))
			return
		}
		responses.WriteSuccess(w, c.Stats())
	}
}
