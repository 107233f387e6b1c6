package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types pushed to clients.
const (
	EventAppointmentApproved  = "appointment_approved"
	EventAppointmentDeclined  = "appointment_declined"
	EventAppointmentCancelled = "appointment_cancelled"
	EventAppointmentCompleted = "appointment_completed"
	EventSOSAlert             = "sos_alert"
	EventSOSResponded         = "sos_responded"
	EventReceiveMessage       = "receive_message"
	EventCallSignal           = "call_signal"
	EventStatus               = "status"
	EventError                = "error"
)

// Client actions.
const (
	ActionJoin        = "join"
	ActionLeave       = "leave"
	ActionSendMessage = "send_message"
	ActionSignal      = "signal"
)

// Call signalling kinds relayed between chat participants.
var signalKinds = map[string]bool{
	"offer":         true,
	"answer":        true,
	"ice_candidate": true,
	"end_call":      true,
	"decline_call":  true,
}

// Event is a server-to-client frame.
type Event struct {
	Type      string          `json:"type"`
	Room      string          `json:"room"`
	Sender    *uuid.UUID      `json:"sender,omitempty"`
	Body      string          `json:"body,omitempty"`
	MediaURL  string          `json:"media_url,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event with data marshalled to JSON. Marshal failures
// leave Data empty.
func NewEvent(eventType, room string, data any) Event {
	ev := Event{Type: eventType, Room: room, Timestamp: time.Now().UTC()}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// ClientMessage is a client-to-server frame.
type ClientMessage struct {
	Action   string          `json:"action"`
	Room     string          `json:"room"`
	Body     string          `json:"body,omitempty"`
	MediaURL string          `json:"media_url,omitempty"`
	Kind     string          `json:"kind,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}
