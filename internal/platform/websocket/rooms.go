package websocket

import (
	"strings"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

// DoctorsRoom receives SOS broadcasts.
const DoctorsRoom = "doctors"

const (
	userPrefix = "user:"
	chatPrefix = "chat:"
)

// UserRoom is the implicit per-user channel every connection joins.
func UserRoom(id uuid.UUID) string {
	return userPrefix + id.String()
}

// ChatRoom names the room shared by two chat participants. The ids are sorted
// so both sides compute the same name.
func ChatRoom(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return chatPrefix + x + ":" + y
}

// ParseChatRoom returns the two participants of a canonical chat room name.
func ParseChatRoom(room string) (uuid.UUID, uuid.UUID, error) {
	rest, ok := strings.CutPrefix(room, chatPrefix)
	if !ok {
		return uuid.Nil, uuid.Nil, apperr.Validation("not a chat room: %q", room)
	}
	left, right, ok := strings.Cut(rest, ":")
	if !ok {
		return uuid.Nil, uuid.Nil, apperr.Validation("malformed chat room: %q", room)
	}
	a, errA := uuid.Parse(left)
	b, errB := uuid.Parse(right)
	if errA != nil || errB != nil || a == b {
		return uuid.Nil, uuid.Nil, apperr.Validation("malformed chat room: %q", room)
	}
	if ChatRoom(a, b) != room {
		return uuid.Nil, uuid.Nil, apperr.Validation("chat room ids must be sorted: %q", room)
	}
	return a, b, nil
}

// CanJoin decides whether actor may subscribe to room.
func CanJoin(actor auth.Actor, room string) error {
	switch {
	case room == DoctorsRoom:
		if actor.Role != auth.RoleDoctor {
			return apperr.Forbidden("only doctors may join %s", DoctorsRoom)
		}
		return nil
	case strings.HasPrefix(room, userPrefix):
		if room != UserRoom(actor.ID) {
			return apperr.Forbidden("cannot join another user's room")
		}
		return nil
	case strings.HasPrefix(room, chatPrefix):
		a, b, err := ParseChatRoom(room)
		if err != nil {
			return err
		}
		if actor.ID != a && actor.ID != b {
			return apperr.Forbidden("not a participant of %s", room)
		}
		return nil
	default:
		return apperr.Validation("unknown room %q", room)
	}
}
