// Package websocket relays real-time events to connected clients. Clients are
// grouped into named rooms; publishing to a room delivers to every member
// connected to this process.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/auth"
)

// sendBuffer is the per-connection outbound queue length. A client that falls
// this far behind misses events rather than stalling the publisher.
const sendBuffer = 256

// EventPublisher delivers an event to the members of event.Room.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client is one connected session.
type Client struct {
	ID    string
	Actor auth.Actor
	Send  chan []byte
	rooms map[string]struct{}
}

// NewClient returns a client with an empty room set.
func NewClient(actor auth.Actor) *Client {
	return &Client{
		ID:    uuid.NewString(),
		Actor: actor,
		Send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]struct{}),
	}
}

// Hub tracks clients and their room memberships.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	all   map[*Client]struct{}

	// pubMu serializes deliveries so each room sees events in publish order.
	pubMu sync.Mutex

	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger.With().Str("component", "relay").Logger(),
	}
}

// Register adds the client and joins it to its own user room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	h.join(client, UserRoom(client.Actor.ID))
}

// Unregister drops every membership of the client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for room := range client.rooms {
		h.leave(client, room)
	}
	delete(h.all, client)
	close(client.Send)
}

// Join subscribes the client to room after checking it may do so.
func (h *Hub) Join(client *Client, room string) error {
	if err := CanJoin(client.Actor, room); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return nil
	}
	h.join(client, room)
	return nil
}

// Leave unsubscribes the client from room. The user room cannot be left.
func (h *Hub) Leave(client *Client, room string) {
	if room == UserRoom(client.Actor.ID) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(client, room)
}

func (h *Hub) join(client *Client, room string) {
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (h *Hub) leave(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// InRoom reports whether client is currently a member of room.
func (h *Hub) InRoom(client *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := client.rooms[room]
	return ok
}

// Broadcast delivers event to every member of room.
func (h *Hub) Broadcast(room string, event Event) {
	h.BroadcastExcept(room, event, nil)
}

// BroadcastExcept delivers event to every member of room other than skip.
// Members whose buffer is full are skipped.
func (h *Hub) BroadcastExcept(room string, event Event, skip *Client) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("room", room).Msg("marshal event")
		return
	}

	h.pubMu.Lock()
	defer h.pubMu.Unlock()
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		if client == skip {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().
				Str("client_id", client.ID).
				Str("room", room).
				Str("type", event.Type).
				Msg("client send buffer full, event dropped")
		}
	}
}

// SendTo writes event to a single client, used for replies such as errors.
func (h *Hub) SendTo(client *Client, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

// Publish implements EventPublisher for a single process.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Room, event)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// RoomCount returns the number of local members of room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
