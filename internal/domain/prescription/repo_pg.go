package prescription

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const rxCols = `r.id, r.patient_id, r.doctor_id, r.appointment_id, r.diagnosis,
	r.medicines, r.instructions, r.created_at, p.name, d.name`

const rxFrom = ` FROM prescriptions r
	JOIN users p ON p.id = r.patient_id
	JOIN users d ON d.id = r.doctor_id`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.DoctorID, &p.AppointmentID, &p.Diagnosis,
		&p.Medicines, &p.Instructions, &p.CreatedAt, &p.PatientName, &p.DoctorName)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO prescriptions (id, patient_id, doctor_id, appointment_id, diagnosis, medicines, instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		p.ID, p.PatientID, p.DoctorID, p.AppointmentID, p.Diagnosis, p.Medicines, p.Instructions,
	).Scan(&p.CreatedAt)
	if err != nil {
		return apperr.Storage("insert prescription", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+rxCols+rxFrom+` WHERE r.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("prescription")
	}
	if err != nil {
		return nil, apperr.Storage("get prescription", err)
	}
	return p, nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	var (
		where []string
		args  []any
	)
	if f.PatientID != uuid.Nil {
		args = append(args, f.PatientID)
		where = append(where, fmt.Sprintf(`r.patient_id = $%d`, len(args)))
	}
	if f.DoctorID != uuid.Nil {
		args = append(args, f.DoctorID)
		where = append(where, fmt.Sprintf(`r.doctor_id = $%d`, len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = ` WHERE ` + strings.Join(where, ` AND `)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions r`+cond, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count prescriptions", err)
	}

	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, `SELECT `+rxCols+rxFrom+cond+
		fmt.Sprintf(` ORDER BY r.created_at DESC, r.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, apperr.Storage("list prescriptions", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Prescription, error) {
		return scanPrescription(row)
	})
	if err != nil {
		return nil, 0, apperr.Storage("list prescriptions", err)
	}
	return items, total, nil
}
