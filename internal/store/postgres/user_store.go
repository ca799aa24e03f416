package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

var _ domain.UserStore = (*UserStore)(nil)

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Upsert inserts the user or refreshes their username and full name.
func (s *UserStore) Upsert(ctx context.Context, u domain.User) (domain.User, error) {
	var (
		out      domain.User
		username *string
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			username  = EXCLUDED.username,
			full_name = EXCLUDED.full_name
		RETURNING id, username, full_name, created_at`,
		u.ID, nullable(u.Username), u.FullName,
	).Scan(&out.ID, &username, &out.FullName, &out.CreatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("postgres: upsert user %d: %w", u.ID, err)
	}
	if username != nil {
		out.Username = *username
	}
	return out, nil
}

// GetByID retrieves a user by Telegram id.
func (s *UserStore) GetByID(ctx context.Context, id int64) (domain.User, error) {
	var (
		out      domain.User
		username *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, full_name, created_at FROM users WHERE id = $1`, id,
	).Scan(&out.ID, &username, &out.FullName, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %d: %w", id, err)
	}
	if username != nil {
		out.Username = *username
	}
	return out, nil
}
