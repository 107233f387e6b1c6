package notification

import (
	"context"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/platform/auth"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, actor auth.Actor, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListByUser(ctx, actor.ID, unreadOnly, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, actor auth.Actor) (int, error) {
	return s.repo.UnreadCount(ctx, actor.ID)
}

// MarkRead reports not found for other users' notifications so ids cannot be probed.
func (s *Service) MarkRead(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, actor.ID)
}

func (s *Service) MarkAllRead(ctx context.Context, actor auth.Actor) (int, error) {
	return s.repo.MarkAllRead(ctx, actor.ID)
}
