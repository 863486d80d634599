// Package server defines the JSON event envelopes exchanged with clients and
// helpers for building server-originated frames.
package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Client-originated event names.
const (
	EventGetAvailableRooms = "getAvailableRooms"
	EventCheckUsername     = "checkUsername"
	EventJoinRoom          = "joinRoom"
	EventCreateRoom        = "createRoom"
	EventUserMessage       = "userMessage"
	EventLeaveRoom         = "leaveRoom"
)

// Server-originated event names.
const (
	EventAvailableRooms = "availableRooms"
	EventMessage        = "message"
	EventAck            = "ack"
)

// SystemUsername is the sender name on server-synthesized notices.
const SystemUsername = "System"

// Envelope is the flat client-to-server event frame. Event selects the
// intent; the remaining fields are populated per event. Ack is a
// client-chosen correlation id echoed back on acknowledgment frames for the
// events that reply with a boolean (checkUsername, createRoom).
type Envelope struct {
	Event     string `json:"event"`
	Ack       int64  `json:"ack,omitempty"`
	Room      string `json:"room,omitempty"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message,omitempty"`
	TimeStamp string `json:"timeStamp,omitempty"`
}

// ChatMessage is the server-to-client message frame, carried for both user
// messages (fields forwarded verbatim) and system notices.
type ChatMessage struct {
	Event     string `json:"event"`
	Room      string `json:"room"`
	Message   string `json:"message"`
	Username  string `json:"username"`
	TimeStamp string `json:"timeStamp"`
}

type roomListFrame struct {
	Event string   `json:"event"`
	Rooms []string `json:"rooms"`
}

type ackFrameBody struct {
	Event  string `json:"event"`
	Ack    int64  `json:"ack"`
	Result bool   `json:"result"`
}

// parseEnvelope decodes a raw client frame.
func parseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("frame missing event field")
	}
	return env, nil
}

func messageFrame(room, text, username, timeStamp string) []byte {
	payload, _ := json.Marshal(ChatMessage{
		Event:     EventMessage,
		Room:      room,
		Message:   text,
		Username:  username,
		TimeStamp: timeStamp,
	})
	return payload
}

// systemNotice builds a message frame from the System sender with a
// server-generated display timestamp.
func systemNotice(room, text string) []byte {
	return messageFrame(room, text, SystemUsername, displayTimestamp(time.Now()))
}

func availableRoomsFrame(rooms []string) []byte {
	payload, _ := json.Marshal(roomListFrame{
		Event: EventAvailableRooms,
		Rooms: rooms,
	})
	return payload
}

func ackFrame(ack int64, result bool) []byte {
	payload, _ := json.Marshal(ackFrameBody{
		Event:  EventAck,
		Ack:    ack,
		Result: result,
	})
	return payload
}

// displayTimestamp formats t the way clients render it: a locale-style
// "M/D/YYYY, h:mm:ss AM/PM" string.
func displayTimestamp(t time.Time) string {
	return t.Format("1/2/2006, 3:04:05 PM")
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
