package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

// TrackedMarketStore implements domain.TrackedMarketStore using PostgreSQL.
type TrackedMarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.TrackedMarketStore = (*TrackedMarketStore)(nil)

// NewTrackedMarketStore creates a new TrackedMarketStore backed by the given
// connection pool.
func NewTrackedMarketStore(pool *pgxpool.Pool) *TrackedMarketStore {
	return &TrackedMarketStore{pool: pool}
}

const trackedCols = `id, user_id, market_id, token_id, market_url, market_title,
	target_price, condition, is_active, created_at`

// scanTracked scans a single row into a domain.TrackedMarket. Nullable
// columns map to empty strings.
func scanTracked(row pgx.Row) (domain.TrackedMarket, error) {
	var (
		m         domain.TrackedMarket
		tokenID   *string
		title     *string
		condition string
	)
	err := row.Scan(
		&m.ID, &m.UserID, &m.MarketID, &tokenID, &m.URL, &title,
		&m.TargetPrice, &condition, &m.Active, &m.CreatedAt,
	)
	if err != nil {
		return domain.TrackedMarket{}, err
	}
	if tokenID != nil {
		m.TokenID = *tokenID
	}
	if title != nil {
		m.Title = *title
	}
	m.Condition = domain.Condition(condition)
	return m, nil
}

func collectTracked(rows pgx.Rows) ([]domain.TrackedMarket, error) {
	defer rows.Close()
	var out []domain.TrackedMarket
	for rows.Next() {
		m, err := scanTracked(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts m and returns it with the assigned id and creation time.
func (s *TrackedMarketStore) Create(ctx context.Context, m domain.TrackedMarket) (domain.TrackedMarket, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tracked_markets (
			user_id, market_id, token_id, market_url, market_title,
			target_price, condition, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+trackedCols,
		m.UserID, m.MarketID, nullable(m.TokenID), m.URL, nullable(m.Title),
		m.TargetPrice, string(m.Condition), m.Active,
	)
	created, err := scanTracked(row)
	if err != nil {
		return domain.TrackedMarket{}, fmt.Errorf("postgres: create tracked market %s for user %d: %w", m.MarketID, m.UserID, err)
	}
	return created, nil
}

// GetByID retrieves a tracked market by its primary key.
func (s *TrackedMarketStore) GetByID(ctx context.Context, id int64) (domain.TrackedMarket, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+trackedCols+` FROM tracked_markets WHERE id = $1`, id)
	m, err := scanTracked(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TrackedMarket{}, domain.ErrNotFound
		}
		return domain.TrackedMarket{}, fmt.Errorf("postgres: get tracked market %d: %w", id, err)
	}
	return m, nil
}

// GetByUserAndMarketID returns the user's earliest subscription to marketID.
func (s *TrackedMarketStore) GetByUserAndMarketID(ctx context.Context, userID int64, marketID string) (domain.TrackedMarket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+trackedCols+` FROM tracked_markets
		WHERE user_id = $1 AND market_id = $2
		ORDER BY id ASC
		LIMIT 1`, userID, marketID)
	m, err := scanTracked(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TrackedMarket{}, domain.ErrNotFound
		}
		return domain.TrackedMarket{}, fmt.Errorf("postgres: get tracked market %s for user %d: %w", marketID, userID, err)
	}
	return m, nil
}

// ListByUser returns every market the user tracks, newest first.
func (s *TrackedMarketStore) ListByUser(ctx context.Context, userID int64) ([]domain.TrackedMarket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+trackedCols+` FROM tracked_markets
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tracked markets for user %d: %w", userID, err)
	}
	markets, err := collectTracked(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan tracked markets for user %d: %w", userID, err)
	}
	return markets, nil
}

// ListActive returns every active tracked market across all users.
func (s *TrackedMarketStore) ListActive(ctx context.Context) ([]domain.TrackedMarket, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+trackedCols+` FROM tracked_markets WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active tracked markets: %w", err)
	}
	markets, err := collectTracked(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active tracked markets: %w", err)
	}
	return markets, nil
}

// UpdateTargetPrice sets the target and condition of a tracked market.
func (s *TrackedMarketStore) UpdateTargetPrice(ctx context.Context, id int64, target int, cond domain.Condition) (domain.TrackedMarket, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tracked_markets SET target_price = $2, condition = $3
		WHERE id = $1
		RETURNING `+trackedCols, id, target, string(cond))
	m, err := scanTracked(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TrackedMarket{}, domain.ErrNotFound
		}
		return domain.TrackedMarket{}, fmt.Errorf("postgres: update target of tracked market %d: %w", id, err)
	}
	return m, nil
}

// UpdateStatus switches monitoring of a tracked market on or off.
func (s *TrackedMarketStore) UpdateStatus(ctx context.Context, id int64, active bool) (domain.TrackedMarket, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tracked_markets SET is_active = $2
		WHERE id = $1
		RETURNING `+trackedCols, id, active)
	m, err := scanTracked(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TrackedMarket{}, domain.ErrNotFound
		}
		return domain.TrackedMarket{}, fmt.Errorf("postgres: update status of tracked market %d: %w", id, err)
	}
	return m, nil
}

// Delete removes a tracked market. Deleting a missing id is a no-op.
func (s *TrackedMarketStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM tracked_markets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete tracked market %d: %w", id, err)
	}
	return nil
}
