// Package identitytest provides an in-memory user store for tests of
// packages that look up users.
package identitytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

// MemoryRepo implements identity.Repository in memory.
type MemoryRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*identity.User
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: make(map[uuid.UUID]*identity.User)}
}

// Add stores a user with the given role and name and returns it.
func (m *MemoryRepo) Add(role auth.Role, name string) *identity.User {
	u := &identity.User{
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

func (m *MemoryRepo) Create(_ context.Context, u *identity.User) error {
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

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

func (m *MemoryRepo) GetByUsername(_ context.Context, username string) (*identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (m *MemoryRepo) byRole(role auth.Role) []*identity.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*identity.User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *MemoryRepo) ListByRole(_ context.Context, role auth.Role, limit, offset int) ([]*identity.User, int, error) {
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

func (m *MemoryRepo) IDsByRole(_ context.Context, role auth.Role) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, u := range m.byRole(role) {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

var _ identity.Repository = (*MemoryRepo)(nil)
