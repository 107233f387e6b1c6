package chat

import "context"

type Repository interface {
	Create(ctx context.Context, m *Message) error
	// ListByRoom returns messages oldest first.
	ListByRoom(ctx context.Context, room string, limit, offset int) ([]*Message, int, error)
}
