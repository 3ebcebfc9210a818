package main

import (
	"context"
	"net/http"
	"time"

	webAdapter "seller-ops/internal/adapters/web"
	"seller-ops/internal/app"
	"seller-ops/internal/cache"
	"seller-ops/internal/config"
	"seller-ops/internal/core"
	"seller-ops/internal/db"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	resolver := core.NewBundleResolver(pool)
	stockService := core.NewStockService(pool)
	cogsService := core.NewCogsService(pool, resolver, log)
	availabilityService := core.NewAvailabilityService(pool, resolver)
	batchService := core.NewImportBatchService(pool, log)
	reportingService := core.NewReportingService(pool)

	var availCache cache.AvailabilityCache = cache.NoopAvailabilityCache{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisAvailabilityCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unreachable, availability cache disabled")
		} else {
			availCache = redisCache
			defer redisCache.Close()
		}
	}

	svc := app.NewAppService(
		pool,
		stockService,
		cogsService,
		availabilityService,
		batchService,
		reportingService,
		resolver,
		availCache,
		time.Duration(cfg.AvailabilityTTLSeconds)*time.Second,
		log,
	)

	handler := webAdapter.NewHandler(svc, cfg.AllowedOrigin, log)

	log.WithField("addr", cfg.Address()).Info("server starting")
	if err := http.ListenAndServe(cfg.Address(), handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}
