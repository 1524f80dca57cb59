// The eventlogger binary subscribes to the broker channel and durably
// writes each event to the relational store, one transaction per
// message.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"behaviorguard/internal/api/rest"
	"behaviorguard/internal/consumer"
	"behaviorguard/internal/infrastructure/broker"
	"behaviorguard/internal/infrastructure/config"
	"behaviorguard/internal/infrastructure/database"
	"behaviorguard/internal/infrastructure/repository"
	"behaviorguard/internal/metrics"
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

	b, err := broker.New(&cfg.Redis, cfg.Broker.Channel, logger)
	if err != nil {
		logger.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer b.Close()

	registry := metrics.NewRegistry(prometheus.DefaultRegisterer)
	repo := repository.NewEventRepository(pool)
	c := consumer.New(b, repo, registry, cfg.Database.QueryTimeout, logger)

	// The metrics/health server runs beside the consumer loop.
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	server := rest.NewServer(mux, cfg.Server, logger)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start(ctx) }()

	if err := c.Run(ctx); err != nil {
		if errors.Is(err, consumer.ErrSubscriptionLost) {
			logger.Error("consumer exited after subscription loss")
		} else {
			logger.Error("consumer failed", zap.Error(err))
		}
	}
	cancel()

	if err := <-serverErr; err != nil {
		logger.Error("metrics server error", zap.Error(err))
	}
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
