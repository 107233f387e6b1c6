package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/telecare/telecare/pkg/caldate"
)

type Repository interface {
	// Create returns apperr.ErrSlotConflict when another slot-holding
	// appointment already occupies (doctor, date, time).
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, a *Appointment) error
	SlotTaken(ctx context.Context, doctorID uuid.UUID, date caldate.Date, tod caldate.TimeOfDay) (bool, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	DoctorStats(ctx context.Context, doctorID uuid.UUID, today caldate.Date) (*DoctorStats, error)
}
