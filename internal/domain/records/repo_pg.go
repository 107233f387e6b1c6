package records

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO health_records (id, patient_id, uploaded_by, title, record_type, description, file_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		rec.ID, rec.PatientID, rec.UploadedBy, rec.Title, rec.Type, rec.Description, rec.FileURL,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return apperr.Storage("insert health record", err)
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM health_records WHERE patient_id = $1`, patientID).Scan(&total)
	if err != nil {
		return nil, 0, apperr.Storage("count health records", err)
	}
	rows, err := conn.Query(ctx, `
		SELECT h.id, h.patient_id, h.uploaded_by, h.title, h.record_type, h.description,
			h.file_url, h.created_at, u.name
		FROM health_records h
		JOIN users u ON u.id = h.uploaded_by
		WHERE h.patient_id = $1
		ORDER BY h.created_at DESC, h.id
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list health records", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.PatientID, &rec.UploadedBy, &rec.Title, &rec.Type,
			&rec.Description, &rec.FileURL, &rec.CreatedAt, &rec.UploaderName)
		return &rec, err
	})
	if err != nil {
		return nil, 0, apperr.Storage("list health records", err)
	}
	return items, total, nil
}
