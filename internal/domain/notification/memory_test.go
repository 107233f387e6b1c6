package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/platform/apperr"
)

// memoryRepo is an in-memory Repository.
type memoryRepo struct {
	mu    sync.Mutex
	items []*Notification
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{}
}

func (m *memoryRepo) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	m.items = append(m.items, n)
	return nil
}

func (m *memoryRepo) CreateMany(ctx context.Context, ns []*Notification) error {
	for _, n := range ns {
		if err := m.Create(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryRepo) ListByUser(_ context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*Notification
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

func (m *memoryRepo) UnreadCount(_ context.Context, userID uuid.UUID) (int, error) {
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

func (m *memoryRepo) MarkRead(_ context.Context, id, userID uuid.UUID) error {
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

func (m *memoryRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int, error) {
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
func (m *memoryRepo) For(userID uuid.UUID) []*Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the total number of stored notifications.
func (m *memoryRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
