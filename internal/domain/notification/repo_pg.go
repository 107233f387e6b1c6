package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const cols = `id, user_id, title, message, type, is_read, created_at`

func scan(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt)
	return &n, err
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		n.ID, n.UserID, n.Title, n.Message, n.Type).Scan(&n.CreatedAt)
	if err != nil {
		return apperr.Storage("insert notification", err)
	}
	return nil
}

func (r *repoPG) CreateMany(ctx context.Context, ns []*Notification) error {
	if len(ns) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(ns))
	users := make([]uuid.UUID, len(ns))
	titles := make([]string, len(ns))
	messages := make([]string, len(ns))
	types := make([]string, len(ns))
	for i, n := range ns {
		n.ID = uuid.New()
		ids[i], users[i], titles[i], messages[i], types[i] = n.ID, n.UserID, n.Title, n.Message, string(n.Type)
	}

	var createdAt time.Time
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO notifications (id, user_id, title, message, type)
			SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::text[], $4::text[], $5::text[])
			RETURNING created_at
		)
		SELECT COALESCE(MAX(created_at), NOW()) FROM ins`,
		ids, users, titles, messages, types).Scan(&createdAt)
	if err != nil {
		return apperr.Storage("insert notifications", err)
	}
	for _, n := range ns {
		n.CreatedAt = createdAt
	}
	return nil
}

func (r *repoPG) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)`, userID, unreadOnly).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count notifications", err)
	}
	rows, err := conn.Query(ctx, `
		SELECT `+cols+` FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list notifications", err)
	}
	defer rows.Close()
	var items []*Notification
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, 0, apperr.Storage("scan notification", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("list notifications", err)
	}
	return items, total, nil
}

func (r *repoPG) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	if err != nil {
		return 0, apperr.Storage("count unread notifications", err)
	}
	return n, nil
}

func (r *repoPG) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return apperr.Storage("mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification")
	}
	return nil
}

func (r *repoPG) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, apperr.Storage("mark notifications read", err)
	}
	return int(tag.RowsAffected()), nil
}
