package pharmacy

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

const medCols = `id, pharmacy_id, name, quantity, added_date`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.PharmacyID, &m.Name, &m.Quantity, &m.AddedDate)
	return &m, err
}

func (r *repoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medicines (id, pharmacy_id, name, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING added_date`,
		m.ID, m.PharmacyID, m.Name, m.Quantity).Scan(&m.AddedDate)
	if err != nil {
		return apperr.Storage("insert medicine", err)
	}
	return nil
}

func (r *repoPG) ListByPharmacy(ctx context.Context, pharmacyID uuid.UUID) ([]*Medicine, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+medCols+` FROM medicines
		WHERE pharmacy_id = $1
		ORDER BY added_date DESC, id`, pharmacyID)
	if err != nil {
		return nil, apperr.Storage("list medicines", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Medicine, error) {
		return scanMedicine(row)
	})
	if err != nil {
		return nil, apperr.Storage("list medicines", err)
	}
	return items, nil
}

func (r *repoPG) UpdateQuantity(ctx context.Context, id, pharmacyID uuid.UUID, quantity int) (*Medicine, error) {
	m, err := scanMedicine(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE medicines SET quantity = $3
		WHERE id = $1 AND pharmacy_id = $2
		RETURNING `+medCols, id, pharmacyID, quantity))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("medicine")
	}
	if err != nil {
		return nil, apperr.Storage("update medicine", err)
	}
	return m, nil
}

func (r *repoPG) Delete(ctx context.Context, id, pharmacyID uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM medicines WHERE id = $1 AND pharmacy_id = $2`, id, pharmacyID)
	if err != nil {
		return apperr.Storage("delete medicine", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medicine")
	}
	return nil
}

func (r *repoPG) Network(ctx context.Context, search string) ([]NetworkRow, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT m.id, m.pharmacy_id, m.name, m.quantity, m.added_date, u.name, u.email, u.mobile
		FROM medicines m
		JOIN users u ON u.id = m.pharmacy_id
		WHERE $1::text = '' OR m.name ILIKE '%' || $1::text || '%'
		ORDER BY u.name, u.id, m.name`, search)
	if err != nil {
		return nil, apperr.Storage("list pharmacy network", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (NetworkRow, error) {
		var n NetworkRow
		err := row.Scan(&n.ID, &n.PharmacyID, &n.Name, &n.Quantity, &n.AddedDate,
			&n.PharmacyName, &n.PharmacyEmail, &n.PharmacyMobile)
		return n, err
	})
	if err != nil {
		return nil, apperr.Storage("list pharmacy network", err)
	}
	return items, nil
}
