package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crsmanager/crs-backend/api/controllers"
	"github.com/crsmanager/crs-backend/api/middleware"
	"github.com/crsmanager/crs-backend/internal/buyers"
	"github.com/crsmanager/crs-backend/internal/cache"
	"github.com/crsmanager/crs-backend/internal/challans"
	"github.com/crsmanager/crs-backend/pkg/config"
	"github.com/crsmanager/crs-backend/pkg/db"
	"github.com/crsmanager/crs-backend/pkg/logger"
	pkgredis "github.com/crsmanager/crs-backend/pkg/redis"
)

// NewRouter wires every HTTP route. redisP and idempotencyStore are nil when
// Redis is not configured.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP db.Pinger,
	idempotencyStore pkgredis.IdempotencyStore,
	gatherer prometheus.Gatherer,
	crsCache *cache.Cache,
	cacheSource cache.Source,
	buyerService buyers.Service,
	challanService challans.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP, crsCache))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, cfg.Idempotency.TTL, logg))

		r.Route("/buyers", func(r chi.Router) {
			r.Get("/", controllers.ListBuyers(buyerService, logg))
			r.Post("/", controllers.CreateBuyer(buyerService, logg))
			r.Get("/{buyerId}", controllers.GetBuyer(buyerService, logg))
			r.Put("/{buyerId}", controllers.UpdateBuyer(buyerService, logg))
			r.Delete("/{buyerId}", controllers.DeleteBuyer(buyerService, logg))
		})

		r.Route("/challans", func(r chi.Router) {
			r.Get("/", controllers.ListChallans(challanService, logg))
			r.Get("/new", controllers.NewChallanInfo(challanService, logg))
			r.Post("/", controllers.CreateChallan(challanService, logg))
			r.Get("/{challanId}", controllers.GetChallan(challanService, logg))
			r.Patch("/{challanId}", controllers.UpdateChallan(challanService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWT, logg))
		r.Route("/cache", func(r chi.Router) {
			r.Post("/reload", controllers.AdminReloadCache(crsCache, cacheSource, cfg.Cache.ReloadTimeout, logg))
			r.Get("/stats", controllers.AdminCacheStats(crsCache, logg))
		})
	})

	return r
}
