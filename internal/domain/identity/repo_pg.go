package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
)

const usernameConstraint = "users_username_key"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const userCols = `id, username, email, password_hash, role, name, mobile,
	specialist, description, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Name,
		&u.Mobile, &u.Specialist, &u.Description, &u.CreatedAt)
	return &u, err
}

func (r *repoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, name, mobile, specialist, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.Name, u.Mobile,
		u.Specialist, u.Description).Scan(&u.CreatedAt)
	if db.IsUniqueViolation(err, usernameConstraint) {
		return fmt.Errorf("username %q is already taken: %w", u.Username, apperr.ErrConflict)
	}
	if err != nil {
		return apperr.Storage("insert user", err)
	}
	return nil
}

func (r *repoPG) get(ctx context.Context, where string, arg any) (*User, error) {
	u, err := scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE `+where, arg))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, apperr.Storage("get user", err)
	}
	return u, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *repoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.get(ctx, `username = $1`, username)
}

func (r *repoPG) ListByRole(ctx context.Context, role auth.Role, limit, offset int) ([]*User, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count users", err)
	}
	rows, err := conn.Query(ctx, `SELECT `+userCols+` FROM users WHERE role = $1 ORDER BY name, id LIMIT $2 OFFSET $3`,
		role, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list users", err)
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, apperr.Storage("scan user", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("list users", err)
	}
	return items, total, nil
}

func (r *repoPG) IDsByRole(ctx context.Context, role auth.Role) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id FROM users WHERE role = $1 ORDER BY id`, role)
	if err != nil {
		return nil, apperr.Storage("list user ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, apperr.Storage("list user ids", err)
	}
	return ids, nil
}
