package appointment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/pkg/caldate"
)

// activeSlotIndex is the partial unique index over (doctor_id,
// appointment_date, appointment_time) for slot-holding statuses.
const activeSlotIndex = "appointments_active_slot_key"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const apptCols = `a.id, a.patient_id, a.doctor_id, a.appointment_date, a.appointment_time,
	a.appointment_type, a.symptoms, a.status, a.created_at, a.updated_at,
	p.name, d.name`

const apptFrom = ` FROM appointments a
	JOIN users p ON p.id = a.patient_id
	JOIN users d ON d.id = a.doctor_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time,
		&a.Type, &a.Symptoms, &a.Status, &a.CreatedAt, &a.UpdatedAt,
		&a.PatientName, &a.DoctorName)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, appointment_time,
			appointment_type, symptoms, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.Date, a.Time, a.Type, a.Symptoms, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, activeSlotIndex) {
		return fmt.Errorf("doctor already has an appointment on %s at %s: %w", a.Date, a.Time, apperr.ErrSlotConflict)
	}
	if err != nil {
		return apperr.Storage("insert appointment", err)
	}
	return nil
}

func (r *repoPG) get(ctx context.Context, id uuid.UUID, lock bool) (*Appointment, error) {
	q := `SELECT ` + apptCols + apptFrom + ` WHERE a.id = $1`
	if lock {
		q += ` FOR UPDATE OF a`
	}
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, q, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment")
	}
	if err != nil {
		return nil, apperr.Storage("get appointment", err)
	}
	return a, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, id, false)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, id, true)
}

func (r *repoPG) UpdateStatus(ctx context.Context, a *Appointment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`, a.ID, a.Status).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("appointment")
	}
	if err != nil {
		return apperr.Storage("update appointment status", err)
	}
	return nil
}

func (r *repoPG) SlotTaken(ctx context.Context, doctorID uuid.UUID, date caldate.Date, tod caldate.TimeOfDay) (bool, error) {
	var taken bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND appointment_date = $2 AND appointment_time = $3
			  AND status IN ('pending', 'scheduled', 'confirmed')
		)`, doctorID, date, tod).Scan(&taken)
	if err != nil {
		return false, apperr.Storage("check slot", err)
	}
	return taken, nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != uuid.Nil {
		add(`a.patient_id = $%d`, f.PatientID)
	}
	if f.DoctorID != uuid.Nil {
		add(`a.doctor_id = $%d`, f.DoctorID)
	}
	if f.Status != "" {
		if f.Status.Normalize() == StatusConfirmed {
			add(`a.status IN ('confirmed', $%d)`, StatusScheduled)
		} else {
			add(`a.status = $%d`, f.Status)
		}
	}
	cond := ""
	if len(where) > 0 {
		cond = ` WHERE ` + strings.Join(where, ` AND `)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+cond, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count appointments", err)
	}

	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, `SELECT `+apptCols+apptFrom+cond+
		fmt.Sprintf(` ORDER BY a.appointment_date DESC, a.appointment_time DESC, a.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, apperr.Storage("list appointments", err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, apperr.Storage("scan appointment", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("list appointments", err)
	}
	return items, total, nil
}

func (r *repoPG) DoctorStats(ctx context.Context, doctorID uuid.UUID, today caldate.Date) (*DoctorStats, error) {
	var s DoctorStats
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM appointments
			  WHERE doctor_id = $1 AND appointment_date = $2 AND status IN ('confirmed', 'scheduled')),
			(SELECT COUNT(DISTINCT patient_id) FROM appointments WHERE doctor_id = $1),
			(SELECT COUNT(*) FROM prescriptions WHERE doctor_id = $1),
			(SELECT COUNT(*) FROM appointments WHERE doctor_id = $1 AND status = 'pending')`,
		doctorID, today).Scan(&s.TodayAppointments, &s.TotalPatients, &s.PrescriptionsWritten, &s.PendingRequests)
	if err != nil {
		return nil, apperr.Storage("doctor stats", err)
	}
	return &s, nil
}
