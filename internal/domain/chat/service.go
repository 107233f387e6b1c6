package chat

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/websocket"
)

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

type Service struct {
	messages Repository
	users    Users
	relay    websocket.EventPublisher
	logger   zerolog.Logger
}

func NewService(messages Repository, users Users, relay websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		messages: messages,
		users:    users,
		relay:    relay,
		logger:   logger.With().Str("component", "chat").Logger(),
	}
}

func (s *Service) room(actor auth.Actor, peerID uuid.UUID) (string, error) {
	if peerID == actor.ID {
		return "", apperr.Validation("cannot chat with yourself")
	}
	return websocket.ChatRoom(actor.ID, peerID), nil
}

func validMediaURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Send stores a message to peerID and relays it to the pair's room.
func (s *Service) Send(ctx context.Context, actor auth.Actor, peerID uuid.UUID, in SendInput) (*Message, error) {
	room, err := s.room(actor, peerID)
	if err != nil {
		return nil, err
	}
	body := strings.TrimSpace(in.Body)
	media := strings.TrimSpace(in.MediaURL)
	if body == "" && media == "" {
		return nil, apperr.Validation("message body or media_url is required")
	}
	if len(body) > MaxBodyLength {
		return nil, apperr.Validation("message body exceeds %d bytes", MaxBodyLength)
	}
	if media != "" && !validMediaURL(media) {
		return nil, apperr.Validation("media_url must be an http(s) URL")
	}
	if _, err := s.users.GetByID(ctx, peerID); err != nil {
		return nil, err
	}

	m := &Message{Room: room, SenderID: actor.ID, Body: body}
	if media != "" {
		m.MediaURL = &media
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}

	ev := websocket.NewEvent(websocket.EventReceiveMessage, room, map[string]uuid.UUID{"message_id": m.ID})
	ev.Sender = &m.SenderID
	ev.Body = m.Body
	ev.MediaURL = media
	ev.Timestamp = m.CreatedAt
	if err := s.relay.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("room", room).Msg("relay publish failed")
	}
	return m, nil
}

// SendToRoom handles send_message frames arriving over the relay socket.
func (s *Service) SendToRoom(ctx context.Context, from auth.Actor, room, body, mediaURL string) error {
	a, b, err := websocket.ParseChatRoom(room)
	if err != nil {
		return err
	}
	var peer uuid.UUID
	switch from.ID {
	case a:
		peer = b
	case b:
		peer = a
	default:
		return apperr.Forbidden("not a participant of %s", room)
	}
	_, err = s.Send(ctx, from, peer, SendInput{Body: body, MediaURL: mediaURL})
	return err
}

// History returns the conversation between actor and peerID, oldest first.
func (s *Service) History(ctx context.Context, actor auth.Actor, peerID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	room, err := s.room(actor, peerID)
	if err != nil {
		return nil, 0, err
	}
	return s.messages.ListByRoom(ctx, room, limit, offset)
}
