// Package server coordinates client registration, intent dispatch, room
// broadcast groups, and connection cleanup for the hearth service via the Hub
// type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearthchat/hearth/internal/metrics"
)

// intent pairs a decoded client frame with the connection it arrived on.
// Intents are processed one at a time on the hub event loop, so registry and
// group state have a single writer.
type intent struct {
	client *Client
	env    Envelope
}

// Hub owns all WebSocket client connections, the per-room broadcast groups,
// and the session-router state transitions. Registration, unregistration, and
// every client intent are serialized onto one event loop; membership state is
// always updated before the corresponding broadcast is sent.
type Hub struct {
	cfg      Config
	registry *Registry
	log      zerolog.Logger

	clients map[*Client]bool
	groups  map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	intents    chan intent

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub bound to the given registry. The returned Hub is ready
// to manage connections once Run is started in its own goroutine.
func NewHub(cfg Config, registry *Registry, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		registry:   registry,
		log:        logger,
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		intents:    make(chan intent),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry returns the room registry the hub routes against.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Register hands a new client to the event loop. If the hub is already
// shutting down the client's connection is closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		if client.conn != nil {
			_ = client.conn.Close()
		}
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and intent dispatch. This method should be called in a
// separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn().Msg("received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.dropClient(client, "connection closed")

		case it := <-h.intents:
			h.dispatch(it.client, it.env)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	metrics.ConnectionsActive.Inc()
	client.log.Info().Int("total_clients", clientCount).Msg("client registered")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	// The room list is pushed immediately so clients can render the lobby
	// without an explicit request.
	h.toClient(client, availableRoomsFrame(h.registry.Rooms()))
}

// dropClient removes a client from the hub, applies the disconnect side
// effects for its session, and closes its send channel. Safe to call twice
// for the same client; the second call is a no-op.
func (h *Hub) dropClient(client *Client, reason string) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	metrics.ConnectionsActive.Dec()

	for room, group := range h.groups {
		delete(group, client)
		if len(group) == 0 {
			delete(h.groups, room)
		}
	}

	h.handleDisconnect(client)
	client.log.Info().Str("reason", reason).Int("total_clients", clientCount).Msg("client unregistered")
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("recovered from panic in safeSend")
		}
	}()

	// Hold the lock during the entire send so the channel cannot be closed
	// underneath us.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// toClient delivers a frame to a single connection, dropping the client if
// its send buffer is full.
func (h *Hub) toClient(client *Client, payload []byte) {
	if !h.safeSend(client, payload) {
		metrics.ClientsDropped.Inc()
		h.dropClient(client, "send buffer full")
	}
}

// toRoom fans a frame out to every connection in the room's broadcast group,
// excluding except when non-nil.
func (h *Hub) toRoom(room string, except *Client, payload []byte) {
	group := h.groups[room]
	if len(group) == 0 {
		return
	}

	targets := make([]*Client, 0, len(group))
	for client := range group {
		if client == except {
			continue
		}
		targets = append(targets, client)
	}

	var failed []*Client
	for _, client := range targets {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		metrics.ClientsDropped.Inc()
		h.dropClient(client, "send buffer full")
	}
}

// toAll delivers a frame to every connected client regardless of room.
func (h *Hub) toAll(payload []byte) {
	h.mutex.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mutex.RUnlock()

	var failed []*Client
	for _, client := range targets {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		metrics.ClientsDropped.Inc()
		h.dropClient(client, "send buffer full")
	}
}

func (h *Hub) joinGroup(client *Client, room string) {
	group := h.groups[room]
	if group == nil {
		group = make(map[*Client]bool)
		h.groups[room] = group
	}
	group[client] = true
}

func (h *Hub) leaveGroup(client *Client, room string) {
	group := h.groups[room]
	if group == nil {
		return
	}
	delete(group, client)
	if len(group) == 0 {
		delete(h.groups, room)
	}
}

// shutdownClients closes all active client connections. Send channels are
// closed as well so write pumps drain their queues and exit instead of
// blocking until the next ping tick.
func (h *Hub) shutdownClients() {
	h.log.Info().Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		client.closed = true
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		metrics.ConnectionsActive.Dec()
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				client.log.Error().Err(err).Msg("error closing client connection")
			}
		}
	}

	h.log.Info().Int("count", len(clients)).Msg("closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all pump
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
