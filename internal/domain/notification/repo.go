package notification

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	// CreateMany inserts all notifications in one statement.
	CreateMany(ctx context.Context, ns []*Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	// MarkRead returns apperr.ErrNotFound unless id belongs to userID.
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
}
