// Package server exposes the HTTP handlers in front of the hub: the
// WebSocket upgrade endpoint, health check, and room listing.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// API bundles the HTTP handlers with their dependencies.
type API struct {
	hub      *Hub
	registry *Registry
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewAPI creates the handler set for the given hub. The WebSocket upgrader
// enforces the configured origin allow-list.
func NewAPI(hub *Hub, cfg Config, logger zerolog.Logger) *API {
	policy := newOriginPolicy(cfg.AllowedOrigins, logger)
	return &API{
		hub:      hub,
		registry: hub.Registry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		log: logger,
	}
}

// WebSocket upgrades the HTTP connection and registers the resulting client
// with the hub, which launches the read/write pumps.
func (a *API) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, a.hub, r.RemoteAddr)
	a.hub.Register(client)
}

// Health responds with a plain text message indicating the server is running.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("hearth server is running!"))
}

// roomListResponse is the JSON body returned by the Rooms handler.
type roomListResponse struct {
	Rooms []string `json:"rooms"`
}

// Rooms returns the advertised room list as JSON, mirroring the
// getAvailableRooms protocol event for plain HTTP consumers.
func (a *API) Rooms(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(roomListResponse{Rooms: a.registry.Rooms()}); err != nil {
		a.log.Error().Err(err).Msg("error writing room list response")
	}
}
