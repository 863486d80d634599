// Package testhelpers provides common utilities for testing the hearth
// server: spinning up a full service instance and driving the event protocol
// over real WebSocket connections.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hearthchat/hearth/internal/server"
)

// DefaultTestConfig returns a service configuration suitable for tests: all
// origins allowed and a rate limit high enough to never interfere.
func DefaultTestConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}
	cfg.RateLimit.Burst = 1000
	return cfg
}

// StartChatServer starts a complete service (hub, router, HTTP listener) and
// registers cleanup with the test. It returns the test server and the hub for
// direct shutdown coordination.
func StartChatServer(t *testing.T, cfg server.Config) (*httptest.Server, *server.Hub) {
	t.Helper()

	logger := zerolog.Nop()
	registry := server.NewRegistry(cfg.SeedRooms)
	hub := server.NewHub(cfg, registry, logger)
	go hub.Run()

	api := server.NewAPI(hub, cfg, logger)
	ts := httptest.NewServer(server.NewRouter(api, logger))

	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
		ts.Close()
	})

	return ts, hub
}

// WebSocketURL converts a test server's base URL to its /ws endpoint.
func WebSocketURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// EventConn wraps a WebSocket connection with event-frame semantics. The
// server may batch several frames into one WebSocket message separated by
// newlines; EventConn splits them back apart.
type EventConn struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []map[string]interface{}
}

// Dial connects an EventConn to the server's WebSocket endpoint.
func Dial(t *testing.T, ts *httptest.Server) *EventConn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", ts.URL)

	conn, resp, err := dialer.Dial(WebSocketURL(ts), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("failed to dial WebSocket: %v", err)
	}

	ec := &EventConn{t: t, conn: conn}
	t.Cleanup(ec.Close)
	return ec
}

// Send writes a client event frame.
func (c *EventConn) Send(frame map[string]interface{}) {
	c.t.Helper()
	if err := c.conn.WriteJSON(frame); err != nil {
		c.t.Fatalf("failed to send frame: %v", err)
	}
}

// Recv returns the next event frame, waiting up to two seconds.
func (c *EventConn) Recv() map[string]interface{} {
	c.t.Helper()

	if len(c.pending) > 0 {
		frame := c.pending[0]
		c.pending = c.pending[1:]
		return frame
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		c.t.Fatalf("failed to set read deadline: %v", err)
	}
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("failed to read frame: %v", err)
	}

	for _, part := range bytes.Split(raw, []byte{'\n'}) {
		if len(bytes.TrimSpace(part)) == 0 {
			continue
		}
		var frame map[string]interface{}
		if err := json.Unmarshal(part, &frame); err != nil {
			c.t.Fatalf("frame is not valid JSON: %v (%s)", err, part)
		}
		c.pending = append(c.pending, frame)
	}

	if len(c.pending) == 0 {
		c.t.Fatal("received an empty WebSocket message")
	}
	frame := c.pending[0]
	c.pending = c.pending[1:]
	return frame
}

// RecvEvent reads frames until one matches the given event name, failing the
// test if ten frames pass without a match.
func (c *EventConn) RecvEvent(event string) map[string]interface{} {
	c.t.Helper()

	for i := 0; i < 10; i++ {
		frame := c.Recv()
		if frame["event"] == event {
			return frame
		}
	}
	c.t.Fatalf("no %q frame received", event)
	return nil
}

// ExpectSilence asserts that no frame arrives within the given window. The
// connection must not be read from afterwards; the expired deadline poisons
// it.
func (c *EventConn) ExpectSilence(window time.Duration) {
	c.t.Helper()

	if len(c.pending) > 0 {
		c.t.Fatalf("expected silence, have pending frame %v", c.pending[0])
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		c.t.Fatalf("failed to set read deadline: %v", err)
	}
	if _, raw, err := c.conn.ReadMessage(); err == nil {
		c.t.Fatalf("expected silence, received %s", raw)
	}
}

// ExpectClosed asserts that the server closes the connection within the
// given window, draining any frames still in flight. A read timeout means
// the connection is still open and fails the test.
func (c *EventConn) ExpectClosed(window time.Duration) {
	c.t.Helper()

	if err := c.conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		c.t.Fatalf("failed to set read deadline: %v", err)
	}
	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.t.Fatal("connection still open, expected the server to close it")
		}
		return
	}
}

// Close gracefully closes the connection. Safe to call more than once.
func (c *EventConn) Close() {
	if c.conn == nil {
		return
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
	c.conn = nil
}

// JoinRoom sends a joinRoom intent.
func (c *EventConn) JoinRoom(room, username string) {
	c.t.Helper()
	c.Send(map[string]interface{}{"event": "joinRoom", "room": room, "username": username})
}

// MakeRequest performs an HTTP GET against the test server with a timeout.
func MakeRequest(t *testing.T, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("failed to make request: %v", err)
	}
	return resp
}

// AssertStatusCode checks the HTTP response status.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status code %d, got %d", expected, resp.StatusCode)
	}
}
