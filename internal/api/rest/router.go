package rest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// RouterConfig controls which cross-cutting layers are enabled.
type RouterConfig struct {
	EnableMetrics bool
	EnableTracing bool
	Logger        *zap.Logger
}

// NewRouter builds the HTTP handler tree with the shared middleware
// chain applied to every route.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	if cfg.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	middlewares := []Middleware{
		RequestIDMiddleware(),
		RequestLoggingMiddleware(cfg.Logger),
		RecoveryMiddleware(cfg.Logger),
	}
	if cfg.EnableTracing {
		middlewares = append(middlewares, TracingMiddleware(otel.Tracer("api.rest")))
	}

	return NewMiddlewareChain(middlewares...).Then(mux)
}
