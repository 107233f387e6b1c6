package sos

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

const alertCols = `s.id, s.patient_id, p.name, s.latitude, s.longitude, s.location_error,
	s.user_agent, s.page_url, s.status, s.responding_doctor_id, COALESCE(d.name, ''),
	s.responded_at, s.notes, s.resolved_at, s.created_at`

const alertFrom = ` FROM sos_alerts s
	JOIN users p ON p.id = s.patient_id
	LEFT JOIN users d ON d.id = s.responding_doctor_id`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.Latitude, &a.Longitude, &a.LocationError,
		&a.UserAgent, &a.PageURL, &a.Status, &a.RespondingDoctorID, &a.RespondingDoctorName,
		&a.RespondedAt, &a.Notes, &a.ResolvedAt, &a.CreatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO sos_alerts (id, patient_id, latitude, longitude, location_error, user_agent, page_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		a.ID, a.PatientID, a.Latitude, a.Longitude, a.LocationError, a.UserAgent, a.PageURL, a.Status,
	).Scan(&a.CreatedAt)
	if err != nil {
		return apperr.Storage("insert sos alert", err)
	}
	return nil
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Alert, error) {
	a, err := scanAlert(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+alertCols+alertFrom+` WHERE s.id = $1 FOR UPDATE OF s`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("sos alert")
	}
	if err != nil {
		return nil, apperr.Storage("get sos alert", err)
	}
	return a, nil
}

func (r *repoPG) Update(ctx context.Context, a *Alert) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE sos_alerts
		SET status = $2, responding_doctor_id = $3, responded_at = $4, notes = $5, resolved_at = $6
		WHERE id = $1`,
		a.ID, a.Status, a.RespondingDoctorID, a.RespondedAt, a.Notes, a.ResolvedAt)
	if err != nil {
		return apperr.Storage("update sos alert", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("sos alert")
	}
	return nil
}

func (r *repoPG) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Alert, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM sos_alerts WHERE status = $1`, status).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count sos alerts", err)
	}
	rows, err := conn.Query(ctx, `SELECT `+alertCols+alertFrom+`
		WHERE s.status = $1
		ORDER BY s.created_at DESC, s.id
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list sos alerts", err)
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, apperr.Storage("scan sos alert", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("list sos alerts", err)
	}
	return items, total, nil
}
