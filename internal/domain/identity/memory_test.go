package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

// memoryRepo is an in-memory Repository.
type memoryRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[uuid.UUID]*User)}
}

// Add stores a user with the given role and name and returns it.
func (m *memoryRepo) Add(role auth.Role, name string) *User {
	u := &User{
		ID:        uuid.New(),
		Username:  fmt.Sprintf("%s-%s", role, uuid.NewString()[:8]),
		Email:     "user@example.com",
		Role:      role,
		Name:      name,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
	return u
}

func (m *memoryRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return fmt.Errorf("username %q is already taken: %w", u.Username, apperr.ErrConflict)
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	m.users[u.ID] = u
	return nil
}

func (m *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

func (m *memoryRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (m *memoryRepo) byRole(role auth.Role) []*User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *memoryRepo) ListByRole(_ context.Context, role auth.Role, limit, offset int) ([]*User, int, error) {
	all := m.byRole(role)
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memoryRepo) IDsByRole(_ context.Context, role auth.Role) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, u := range m.byRole(role) {
		ids = append(ids, u.ID)
	}
	return ids, nil
}
