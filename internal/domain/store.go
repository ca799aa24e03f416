package domain

import "context"

// TrackedMarketStore persists tracked markets. Lookups of a missing row
// return ErrNotFound.
type TrackedMarketStore interface {
	Create(ctx context.Context, m TrackedMarket) (TrackedMarket, error)
	GetByID(ctx context.Context, id int64) (TrackedMarket, error)
	// GetByUserAndMarketID returns the lowest-id match when duplicates exist.
	GetByUserAndMarketID(ctx context.Context, userID int64, marketID string) (TrackedMarket, error)
	// ListByUser returns the user's markets, newest first.
	ListByUser(ctx context.Context, userID int64) ([]TrackedMarket, error)
	ListActive(ctx context.Context) ([]TrackedMarket, error)
	UpdateTargetPrice(ctx context.Context, id int64, target int, cond Condition) (TrackedMarket, error)
	UpdateStatus(ctx context.Context, id int64, active bool) (TrackedMarket, error)
	// Delete is idempotent: deleting a missing id is not an error.
	Delete(ctx context.Context, id int64) error
}

// UserStore persists bot users.
type UserStore interface {
	// Upsert creates the user or refreshes username and full name, keeping
	// the original creation time.
	Upsert(ctx context.Context, u User) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
}
