package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

// Repository scopes every mutation to the owning pharmacy. A row owned by
// someone else is reported as not found.
type Repository interface {
	Create(ctx context.Context, m *Medicine) error
	ListByPharmacy(ctx context.Context, pharmacyID uuid.UUID) ([]*Medicine, error)
	UpdateQuantity(ctx context.Context, id, pharmacyID uuid.UUID, quantity int) (*Medicine, error)
	Delete(ctx context.Context, id, pharmacyID uuid.UUID) error
	// Network returns medicines of every pharmacy ordered by pharmacy name then
	// medicine name, optionally filtered by a case-insensitive name match.
	Network(ctx context.Context, search string) ([]NetworkRow, error)
}
