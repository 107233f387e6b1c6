package prescription

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// List returns newest first.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error)
}
