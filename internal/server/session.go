// Package server implements the per-connection session router: the state
// machine that validates membership transitions and translates client intents
// into registry mutations plus broadcast events.
package server

import (
	"fmt"

	"github.com/hearthchat/hearth/internal/metrics"
)

// session tracks one connection's current room/display-name binding. A
// session is Unbound (both fields empty) or Bound; bound sessions always have
// their username present in the bound room's member list. State is mutated
// only on the hub event loop.
type session struct {
	room     string
	username string
}

func (s *session) bound() bool {
	return s.room != ""
}

func (s *session) reset() {
	s.room = ""
	s.username = ""
}

// dispatch routes a decoded client intent to its handler. Unknown events are
// logged and ignored; the protocol has no error replies.
func (h *Hub) dispatch(c *Client, env Envelope) {
	metrics.IntentsTotal.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case EventGetAvailableRooms:
		h.handleGetAvailableRooms(c)
	case EventCheckUsername:
		h.handleCheckUsername(c, env)
	case EventJoinRoom:
		h.handleJoinRoom(c, env)
	case EventCreateRoom:
		h.handleCreateRoom(c, env)
	case EventUserMessage:
		h.handleUserMessage(c, env)
	case EventLeaveRoom:
		h.handleLeaveRoom(c, env)
	default:
		c.log.Warn().Str("event", env.Event).Msg("ignoring unknown event")
	}
}

// handleGetAvailableRooms replies with the current room list to the
// requesting connection only.
func (h *Hub) handleGetAvailableRooms(c *Client) {
	h.toClient(c, availableRoomsFrame(h.registry.Rooms()))
}

// handleCheckUsername acks whether the candidate name is already a member of
// the room. The check is advisory: joinRoom does not re-validate.
func (h *Hub) handleCheckUsername(c *Client, env Envelope) {
	taken := h.registry.IsNameTaken(env.Room, env.Username)
	h.toClient(c, ackFrame(env.Ack, taken))
}

// handleJoinRoom binds the session to (room, username), registers the
// membership, and announces the join to the room's other members.
//
// A session already bound to a different room is rejected without any state
// change; the rejection notice is broadcast to the target room's current
// members rather than returned to the requester, matching the wire protocol
// this service replaces.
func (h *Hub) handleJoinRoom(c *Client, env Envelope) {
	if c.sess.bound() && c.sess.room != env.Room {
		notice := fmt.Sprintf("%s tried to join %s, but must leave their current room first.", env.Username, env.Room)
		h.toRoom(env.Room, c, systemNotice(env.Room, notice))
		return
	}

	c.sess.room = env.Room
	c.sess.username = env.Username
	h.registry.AddMember(env.Room, env.Username)
	h.joinGroup(c, env.Room)

	c.log.Info().Str("room", env.Room).Str("username", env.Username).Msg("client joined room")
	h.toRoom(env.Room, c, systemNotice(env.Room, fmt.Sprintf("%s has joined the room.", env.Username)))
}

// handleCreateRoom attempts to create the named room and acks the outcome.
// On success the updated room list is deliberately broadcast to every
// connection, not just the requester.
func (h *Hub) handleCreateRoom(c *Client, env Envelope) {
	created := h.registry.CreateRoom(env.Room)
	if created {
		metrics.RoomsCreated.Inc()
		c.log.Info().Str("room", env.Room).Msg("room created")
		h.toAll(availableRoomsFrame(h.registry.Rooms()))
	}
	h.toClient(c, ackFrame(env.Ack, created))
}

// handleUserMessage forwards the message verbatim to every other connection
// in the named room's broadcast group. The room and username fields are
// trusted as supplied; the sender never receives an echo.
func (h *Hub) handleUserMessage(c *Client, env Envelope) {
	metrics.MessagesRouted.Inc()
	h.toRoom(env.Room, c, messageFrame(env.Room, env.Message, env.Username, env.TimeStamp))
}

// handleLeaveRoom removes the named membership, leaves the broadcast group,
// and announces the departure to the remaining members. The session returns
// to Unbound when the named room is the one it is bound to.
func (h *Hub) handleLeaveRoom(c *Client, env Envelope) {
	h.registry.RemoveMember(env.Room, env.Username)
	h.leaveGroup(c, env.Room)
	h.toRoom(env.Room, c, systemNotice(env.Room, fmt.Sprintf("%s has left the room.", env.Username)))

	if c.sess.room == env.Room {
		c.sess.reset()
	}
}

// handleDisconnect applies the implicit-leave side effects when a connection
// goes away: bound sessions are removed from their room's membership and a
// departure notice goes to the remaining members. Unbound sessions are a
// no-op, which also makes a second disconnect signal idempotent.
func (h *Hub) handleDisconnect(c *Client) {
	if !c.sess.bound() {
		return
	}

	room, username := c.sess.room, c.sess.username
	c.sess.reset()

	h.registry.RemoveMember(room, username)
	h.toRoom(room, c, systemNotice(room, fmt.Sprintf("%s has left the room.", username)))
}
