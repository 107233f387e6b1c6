package chat

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

const msgCols = `id, room, sender_id, body, media_url, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.Room, &m.SenderID, &m.Body, &m.MediaURL, &m.CreatedAt)
	return &m, err
}

func (r *repoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO chat_messages (id, room, sender_id, body, media_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		m.ID, m.Room, m.SenderID, m.Body, m.MediaURL).Scan(&m.CreatedAt)
	if err != nil {
		return apperr.Storage("insert chat message", err)
	}
	return nil
}

func (r *repoPG) ListByRoom(ctx context.Context, room string, limit, offset int) ([]*Message, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM chat_messages WHERE room = $1`, room).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count chat messages", err)
	}
	rows, err := conn.Query(ctx, `SELECT `+msgCols+` FROM chat_messages
		WHERE room = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`, room, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list chat messages", err)
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, apperr.Storage("scan chat message", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("list chat messages", err)
	}
	return items, total, nil
}
