package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/platform/auth"
)

type Repository interface {
	// Create returns apperr.ErrConflict when the username is taken.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ListByRole(ctx context.Context, role auth.Role, limit, offset int) ([]*User, int, error)
	// IDsByRole returns every user id holding role, for fan-out.
	IDsByRole(ctx context.Context, role auth.Role) ([]uuid.UUID, error)
}
