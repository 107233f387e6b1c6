package sos

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Alert) error
	// GetForUpdate locks the alert until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Alert, error)
	// Update persists status, responder, notes and timestamps.
	Update(ctx context.Context, a *Alert) error
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Alert, int, error)
}
