// Package notificationtest provides an in-memory notification store for
// tests of the services that write notifications.
package notificationtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/domain/notification"
	"github.com/telecare/telecare/internal/platform/apperr"
)

// MemoryRepo implements notification.Repository in memory.
type MemoryRepo struct {
	mu    sync.Mutex
	items []*notification.Notification
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (m *MemoryRepo) Create(_ context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	m.items = append(m.items, n)
	return nil
}

func (m *MemoryRepo) CreateMany(ctx context.Context, ns []*notification.Notification) error {
	for _, n := range ns {
		if err := m.Create(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryRepo) ListByUser(_ context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*notification.Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*notification.Notification
	for _, n := range m.items {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			matched = append(matched, n)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *MemoryRepo) UnreadCount(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.items {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *MemoryRepo) MarkRead(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return apperr.NotFound("notification")
}

func (m *MemoryRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.items {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

// For returns the notifications addressed to userID in insertion order.
func (m *MemoryRepo) For(userID uuid.UUID) []*notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notification.Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the total number of stored notifications.
func (m *MemoryRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

var _ notification.Repository = (*MemoryRepo)(nil)
