package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/insight-ai/insight-go/internal/capture"
	"github.com/insight-ai/insight-go/internal/config"
	"github.com/insight-ai/insight-go/internal/flight"
)

// NewRouter constructs the capture agent's HTTP router with middleware and routes.
// jobMetrics are the screenshot queue counters exported under /v1/metrics.
func NewRouter(cfg *config.Config, agent *capture.Agent, jobMetrics *flight.Metrics, logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(CORSMiddleware(cfg.Capture.AllowedOrigins))
	if cfg.Capture.Token != "" {
		r.Use(AuthMiddleware(cfg.Capture.Token))
	}

	clientMetrics := flight.NewMetrics()
	clients := flight.NewGuard(flight.GuardConfig{
		MaxConcurrent: cfg.Capture.MaxClients,
		Metrics:       clientMetrics,
	})

	h := NewHandler(agent, clients, cfg.Capture.AllowedOrigins, logger)

	r.Get("/v1/health", h.HandleHealth)
	r.Method("GET", "/v1/metrics", flight.MetricsHandler(map[string]*flight.Metrics{
		"capture_jobs":    jobMetrics,
		"capture_clients": clientMetrics,
	}))
	r.Get("/ws", h.HandleCaptureSocket)

	return r
}
