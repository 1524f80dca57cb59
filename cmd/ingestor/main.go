// The ingestor binary serves the streaming ingestion gateway: it
// authenticates WebSocket clients, enriches their event frames with
// the validated identity, and publishes them to the event broker.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"behaviorguard/internal/api/rest"
	"behaviorguard/internal/api/websocket"
	"behaviorguard/internal/infrastructure/auth"
	"behaviorguard/internal/infrastructure/broker"
	"behaviorguard/internal/infrastructure/config"
	"behaviorguard/internal/infrastructure/telemetry"
	"behaviorguard/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
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
		ServiceName:    "behaviorguard-ingestor",
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

	b, err := broker.New(&cfg.Redis, cfg.Broker.Channel, logger)
	if err != nil {
		logger.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer b.Close()

	registry := metrics.NewRegistry(prometheus.DefaultRegisterer)
	validator := auth.NewValidator(auth.Config{
		Secret:   []byte(cfg.Security.JWTSecret),
		Issuer:   cfg.Security.Issuer,
		Audience: cfg.Security.Audience,
	})
	gateway := websocket.NewHandler(validator, b, registry, cfg.Ingest, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/ingest", gateway.HandleIngest)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := b.Ping(r.Context()); err != nil {
			http.Error(w, `{"status":"degraded"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	server := rest.NewServer(mux, cfg.Server, logger)
	if err := server.Start(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
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
