// The riskengine binary serves the training and prediction API: it
// derives per-user feature vectors from stored history, trains
// isolation forests, and scores fresh event batches.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"behaviorguard/internal/api/rest"
	"behaviorguard/internal/infrastructure/cache"
	"behaviorguard/internal/infrastructure/config"
	"behaviorguard/internal/infrastructure/database"
	"behaviorguard/internal/infrastructure/repository"
	"behaviorguard/internal/infrastructure/telemetry"
	"behaviorguard/internal/metrics"
	"behaviorguard/internal/service/risk"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		migrate    = flag.Bool("migrate", false, "Run database migrations before starting")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := telemetry.Init(ctx, &telemetry.Config{
		ServiceName:    "behaviorguard-riskengine",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		BatchTimeout:   cfg.Telemetry.BatchTimeout,
	})
	if err != nil {
		logger.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer provider.Shutdown(context.Background())

	if *migrate {
		if err := database.Migrate(cfg.Database.URL, logger); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
	}

	pool, err := database.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// The model cache is an optimization; the engine runs without it.
	var modelCache risk.ModelCache
	redisCache, err := cache.NewModelCache(&cfg.Redis, cfg.Risk.ModelCacheTTL, logger)
	if err != nil {
		logger.Warn("model cache unavailable, loading models from store only", zap.Error(err))
	} else {
		modelCache = redisCache
		defer redisCache.Close()
	}

	registry := metrics.NewRegistry(prometheus.DefaultRegisterer)
	events := repository.NewEventRepository(pool)
	models := repository.NewModelStore(pool)
	riskSvc := risk.NewService(events, models, modelCache, cfg.Risk, logger)

	handler := rest.NewHandler(riskSvc, registry, pool.Ping, pingOrNil(redisCache), logger)
	router := rest.NewRouter(handler, rest.RouterConfig{
		EnableMetrics: true,
		EnableTracing: cfg.Telemetry.Enabled,
		Logger:        logger,
	})

	server := rest.NewServer(router, cfg.Server, logger)
	if err := server.Start(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func pingOrNil(c *cache.ModelCache) rest.Pinger {
	if c == nil {
		return nil
	}
	return c.Ping
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
	}
	return zapCfg.Build()
}
