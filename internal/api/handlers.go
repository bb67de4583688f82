package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/insight-ai/insight-go/internal/capture"
	"github.com/insight-ai/insight-go/internal/flight"
	"github.com/insight-ai/insight-go/internal/schema"
)

// Handler serves the capture agent endpoints.
type Handler struct {
	agent    *capture.Agent
	clients  *flight.Guard
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a Handler. clients bounds concurrent capture connections.
// Browser pages may only open the capture channel from allowedOrigins.
func NewHandler(agent *capture.Agent, clients *flight.Guard, allowedOrigins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		agent:   agent,
		clients: clients,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || originAllowed(origin, allowedOrigins) {
					return true
				}
				logger.Warn().Str("origin", origin).Str("remote", r.RemoteAddr).Msg("Rejected capture client origin")
				return false
			},
		},
		logger: logger,
	}
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, schema.HealthResponse{Status: "ok"})
}

// HandleCaptureSocket upgrades to the capture channel and serves it until the
// client disconnects.
func (h *Handler) HandleCaptureSocket(w http.ResponseWriter, r *http.Request) {
	release, err := h.clients.TryAcquire()
	if err != nil {
		WriteError(w, http.StatusServiceUnavailable, "Too many capture clients")
		return
	}
	defer release()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade capture channel")
		return
	}

	h.logger.Info().Str("remote", r.RemoteAddr).Msg("Capture client connected")
	h.agent.Serve(r.Context(), conn)
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("Capture client disconnected")
}
