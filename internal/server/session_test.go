package server

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

// newTestHub builds a hub around a seeded registry without starting the event
// loop; tests drive dispatch directly, which mirrors how the loop executes
// intents one at a time.
func newTestHub() *Hub {
	return NewHub(DefaultConfig(), NewRegistry([]string{"General", "Gaming", "Technical"}), zerolog.Nop())
}

// addTestClient registers a connection-less client the way the hub loop
// would, minus the pump goroutines that need a real socket.
func addTestClient(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := NewClient(nil, h, "127.0.0.1:0")
	h.clients[c] = true
	return c
}

// recvFrame pops the next queued frame for the client, failing the test if
// none is pending.
func recvFrame(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()

	select {
	case payload := <-c.send:
		var frame map[string]interface{}
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("frame is not valid JSON: %v", err)
		}
		return frame
	default:
		t.Fatal("expected a pending frame, send queue is empty")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()

	select {
	case payload := <-c.send:
		t.Fatalf("expected no pending frame, got %s", payload)
	default:
	}
}

func assertFrameEvent(t *testing.T, frame map[string]interface{}, event string) {
	t.Helper()
	if frame["event"] != event {
		t.Fatalf("frame event = %v, want %q", frame["event"], event)
	}
}

func join(h *Hub, c *Client, room, username string) {
	h.dispatch(c, Envelope{Event: EventJoinRoom, Room: room, Username: username})
}

func TestJoinRoomBindsSession(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)
	bob := addTestClient(t, h)

	join(h, alice, "General", "alice")
	join(h, bob, "General", "bob")

	if !h.registry.IsNameTaken("General", "alice") {
		t.Error("alice not registered as a member of General")
	}
	if bob.sess.room != "General" || bob.sess.username != "bob" {
		t.Errorf("bob's session = %+v, want bound to (General, bob)", bob.sess)
	}

	// Alice sees bob's join notice; bob does not see his own.
	frame := recvFrame(t, alice)
	assertFrameEvent(t, frame, EventMessage)
	if frame["username"] != SystemUsername {
		t.Errorf("notice sender = %v, want System", frame["username"])
	}
	if frame["message"] != "bob has joined the room." {
		t.Errorf("notice text = %v", frame["message"])
	}
	assertNoFrame(t, bob)
}

func TestJoinRoomWhileBoundElsewhereIsRejected(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)
	carol := addTestClient(t, h)

	join(h, alice, "General", "alice")
	join(h, carol, "Gaming", "carol")
	drainFrames(alice)
	drainFrames(carol)

	// Alice, bound to General, tries to join Gaming.
	join(h, alice, "Gaming", "alice")

	if alice.sess.room != "General" || alice.sess.username != "alice" {
		t.Errorf("alice's binding changed to %+v, want (General, alice)", alice.sess)
	}
	if h.registry.IsNameTaken("Gaming", "alice") {
		t.Error("alice was added to Gaming's membership despite rejection")
	}

	// The rejection notice goes to the target room's members, not to alice.
	frame := recvFrame(t, carol)
	assertFrameEvent(t, frame, EventMessage)
	if frame["room"] != "Gaming" {
		t.Errorf("notice room = %v, want Gaming", frame["room"])
	}
	if frame["message"] != "alice tried to join Gaming, but must leave their current room first." {
		t.Errorf("notice text = %v", frame["message"])
	}
	assertNoFrame(t, alice)
}

func TestRejoiningSameRoomAppendsDuplicateEntry(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)

	join(h, alice, "General", "alice")
	join(h, alice, "General", "alice")

	if got := len(h.registry.Members("General")); got != 2 {
		t.Errorf("member count = %d after re-join, want 2", got)
	}
	if alice.sess.room != "General" {
		t.Errorf("alice's binding = %+v, want General", alice.sess)
	}
}

func TestUserMessageRoutesToRoomPeersOnly(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)
	bob := addTestClient(t, h)
	carol := addTestClient(t, h)

	join(h, alice, "General", "alice")
	join(h, bob, "General", "bob")
	join(h, carol, "Gaming", "carol")
	drainFrames(alice)
	drainFrames(bob)
	drainFrames(carol)

	h.dispatch(alice, Envelope{
		Event:     EventUserMessage,
		Room:      "General",
		Message:   "hi",
		Username:  "alice",
		TimeStamp: "1/2/2026, 3:04:05 PM",
	})

	frame := recvFrame(t, bob)
	assertFrameEvent(t, frame, EventMessage)
	if frame["room"] != "General" || frame["username"] != "alice" || frame["message"] != "hi" {
		t.Errorf("bob received %v", frame)
	}
	if frame["timeStamp"] != "1/2/2026, 3:04:05 PM" {
		t.Errorf("timestamp not forwarded verbatim: %v", frame["timeStamp"])
	}

	assertNoFrame(t, alice) // no echo to the sender
	assertNoFrame(t, carol) // no cross-room delivery
}

func TestLeaveRoomClearsBindingAndMembership(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)
	bob := addTestClient(t, h)

	join(h, alice, "General", "alice")
	join(h, bob, "General", "bob")
	drainFrames(alice)
	drainFrames(bob)

	h.dispatch(alice, Envelope{Event: EventLeaveRoom, Room: "General", Username: "alice"})

	if h.registry.IsNameTaken("General", "alice") {
		t.Error("alice still a member after leaveRoom")
	}
	if alice.sess.bound() {
		t.Errorf("alice's session = %+v, want Unbound", alice.sess)
	}

	frame := recvFrame(t, bob)
	if frame["message"] != "alice has left the room." {
		t.Errorf("notice text = %v", frame["message"])
	}

	// Messages to General no longer reach alice.
	h.dispatch(bob, Envelope{Event: EventUserMessage, Room: "General", Message: "bye", Username: "bob"})
	assertNoFrame(t, alice)
}

func TestLeaveRoomForForeignRoomKeepsBinding(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)

	join(h, alice, "General", "alice")
	drainFrames(alice)

	h.dispatch(alice, Envelope{Event: EventLeaveRoom, Room: "Gaming", Username: "alice"})

	if alice.sess.room != "General" {
		t.Errorf("alice's binding = %+v, want still bound to General", alice.sess)
	}
	if !h.registry.IsNameTaken("General", "alice") {
		t.Error("alice removed from General by a leave naming a different room")
	}
}

func TestDisconnectRemovesMembershipOnce(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)
	bob := addTestClient(t, h)

	join(h, alice, "General", "alice")
	join(h, bob, "General", "bob")
	drainFrames(alice)
	drainFrames(bob)

	h.dropClient(alice, "test disconnect")

	if h.registry.IsNameTaken("General", "alice") {
		t.Error("alice still a member after disconnect")
	}
	frame := recvFrame(t, bob)
	if frame["message"] != "alice has left the room." {
		t.Errorf("notice text = %v", frame["message"])
	}

	// Second disconnect signal is a no-op.
	h.dropClient(alice, "test disconnect")
	assertNoFrame(t, bob)
}

func TestDisconnectUnboundSessionIsNoOp(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)
	bob := addTestClient(t, h)

	join(h, bob, "General", "bob")
	drainFrames(bob)

	h.dropClient(alice, "test disconnect")

	assertNoFrame(t, bob)
	if !h.registry.IsNameTaken("General", "bob") {
		t.Error("bob's membership disturbed by an unbound disconnect")
	}
}

func TestCreateRoomAcksAndBroadcastsRoomList(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)
	bob := addTestClient(t, h)

	h.dispatch(alice, Envelope{Event: EventCreateRoom, Room: "Devs", Ack: 7})

	// Every connection gets the updated list, the requester gets the ack too.
	frame := recvFrame(t, bob)
	assertFrameEvent(t, frame, EventAvailableRooms)

	listFrame := recvFrame(t, alice)
	assertFrameEvent(t, listFrame, EventAvailableRooms)
	ack := recvFrame(t, alice)
	assertFrameEvent(t, ack, EventAck)
	if ack["ack"] != float64(7) || ack["result"] != true {
		t.Errorf("ack frame = %v, want ack=7 result=true", ack)
	}
}

func TestCreateRoomDuplicateAcksFalseWithoutBroadcast(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)
	bob := addTestClient(t, h)

	h.dispatch(alice, Envelope{Event: EventCreateRoom, Room: "General", Ack: 3})

	ack := recvFrame(t, alice)
	assertFrameEvent(t, ack, EventAck)
	if ack["result"] != false {
		t.Errorf("ack result = %v, want false", ack["result"])
	}
	assertNoFrame(t, bob)

	if got := len(h.registry.Rooms()); got != 3 {
		t.Errorf("room count = %d after duplicate create, want 3", got)
	}
}

func TestCheckUsernameAck(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)
	asker := addTestClient(t, h)

	join(h, alice, "General", "alice")

	h.dispatch(asker, Envelope{Event: EventCheckUsername, Room: "General", Username: "alice", Ack: 1})
	ack := recvFrame(t, asker)
	if ack["result"] != true {
		t.Errorf("checkUsername(General, alice) result = %v, want true (taken)", ack["result"])
	}

	h.dispatch(asker, Envelope{Event: EventCheckUsername, Room: "General", Username: "zoe", Ack: 2})
	ack = recvFrame(t, asker)
	if ack["result"] != false {
		t.Errorf("checkUsername(General, zoe) result = %v, want false", ack["result"])
	}

	h.dispatch(asker, Envelope{Event: EventCheckUsername, Room: "Nowhere", Username: "alice", Ack: 3})
	ack = recvFrame(t, asker)
	if ack["result"] != false {
		t.Errorf("checkUsername on unknown room result = %v, want false", ack["result"])
	}
}

func TestGetAvailableRoomsRepliesToRequesterOnly(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)
	bob := addTestClient(t, h)

	h.dispatch(alice, Envelope{Event: EventGetAvailableRooms})

	frame := recvFrame(t, alice)
	assertFrameEvent(t, frame, EventAvailableRooms)
	rooms, ok := frame["rooms"].([]interface{})
	if !ok || len(rooms) != 3 {
		t.Errorf("rooms payload = %v, want the 3 seed rooms", frame["rooms"])
	}
	assertNoFrame(t, bob)
}

func TestUnknownEventIsIgnored(t *testing.T) {
	h := newTestHub()
	alice := addTestClient(t, h)

	h.dispatch(alice, Envelope{Event: "bogus"})

	assertNoFrame(t, alice)
}

func drainFrames(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}
