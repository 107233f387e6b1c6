package records

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error)
}
