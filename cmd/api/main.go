package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/crsmanager/crs-backend/api/routes"
	"github.com/crsmanager/crs-backend/internal/buyers"
	"github.com/crsmanager/crs-backend/internal/cache"
	"github.com/crsmanager/crs-backend/internal/challans"
	"github.com/crsmanager/crs-backend/pkg/config"
	"github.com/crsmanager/crs-backend/pkg/db"
	"github.com/crsmanager/crs-backend/pkg/logger"
	"github.com/crsmanager/crs-backend/pkg/metrics"
	"github.com/crsmanager/crs-backend/pkg/migrate"
	"github.com/crsmanager/crs-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.App.Location()
	if err != nil {
		return err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	// Interfaces stay nil without Redis so readiness and idempotency skip it.
	var (
		redisPinger      db.Pinger
		idempotencyStore redis.IdempotencyStore
	)
	if cfg.Redis.Enabled() {
		redisClient, redisErr := redis.New(ctx, cfg.Redis, logg)
		if redisErr != nil {
			return redisErr
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		redisPinger = redisClient
		idempotencyStore = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, idempotent replay disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	crsCache := cache.New(
		cache.WithMetrics(metrics.NewCacheMetrics(registry)),
		cache.WithLogger(logg),
	)
	source := cache.NewGormSource(dbClient)

	if err = crsCache.Reload(ctx, source, cfg.Cache.ReloadTimeout); err != nil {
		return err
	}

	buyerService, err := buyers.NewService(buyers.NewRepository(dbClient.DB()), crsCache, logg)
	if err != nil {
		return err
	}
	challanService, err := challans.NewService(challans.NewRepository(dbClient.DB()), dbClient, crsCache, logg, loc)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisPinger, idempotencyStore, registry, crsCache, source, buyerService, challanService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"timezone": loc.String(),
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(serveCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logg.Info(serveCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
