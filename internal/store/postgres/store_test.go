package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

// liveClient connects to the database named by POLYALERT_TEST_DATABASE_DSN,
// applies migrations and skips the test when the variable is unset.
func liveClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("POLYALERT_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("POLYALERT_TEST_DATABASE_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.RunMigrations(ctx))
	return c
}

// liveUser registers a throwaway user and removes it (and its markets) after
// the test.
func liveUser(t *testing.T, c *Client) int64 {
	t.Helper()
	ctx := context.Background()
	id := time.Now().UnixNano()
	_, err := NewUserStore(c.Pool()).Upsert(ctx, domain.User{ID: id, Username: "live", FullName: "Live Test"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = c.Pool().Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func TestTrackedMarketStoreLive(t *testing.T) {
	c := liveClient(t)
	ctx := context.Background()
	userID := liveUser(t, c)
	store := NewTrackedMarketStore(c.Pool())

	first, err := store.Create(ctx, domain.TrackedMarket{
		UserID: userID, MarketID: "m1", TokenID: "tok", URL: "https://polymarket.com/event/x",
		Title: "Rain?", TargetPrice: 60, Condition: domain.ConditionGE, Active: true,
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	dup, err := store.Create(ctx, domain.TrackedMarket{
		UserID: userID, MarketID: "m1", URL: "https://polymarket.com/event/x",
		TargetPrice: 10, Condition: domain.ConditionLE, Active: true,
	})
	require.NoError(t, err)

	got, err := store.GetByUserAndMarketID(ctx, userID, "m1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID, "lowest id wins")
	assert.Equal(t, "tok", got.TokenID)

	byID, err := store.GetByID(ctx, dup.ID)
	require.NoError(t, err)
	assert.Empty(t, byID.TokenID)
	assert.Empty(t, byID.Title)

	list, err := store.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, dup.ID, list[0].ID, "newest first")

	updated, err := store.UpdateTargetPrice(ctx, first.ID, 30, domain.ConditionLE)
	require.NoError(t, err)
	assert.Equal(t, 30, updated.TargetPrice)
	assert.Equal(t, domain.ConditionLE, updated.Condition)

	off, err := store.UpdateStatus(ctx, first.ID, false)
	require.NoError(t, err)
	assert.False(t, off.Active)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	for _, m := range active {
		assert.NotEqual(t, first.ID, m.ID)
	}

	require.NoError(t, store.Delete(ctx, first.ID))
	require.NoError(t, store.Delete(ctx, first.ID))
	_, err = store.GetByID(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.UpdateStatus(ctx, first.ID, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserStoreLive(t *testing.T) {
	c := liveClient(t)
	ctx := context.Background()
	id := liveUser(t, c)
	users := NewUserStore(c.Pool())

	before, err := users.GetByID(ctx, id)
	require.NoError(t, err)

	after, err := users.Upsert(ctx, domain.User{ID: id, Username: "renamed", FullName: "New Name"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", after.Username)
	assert.Equal(t, "New Name", after.FullName)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt), "creation time is kept")

	_, err = users.GetByID(ctx, -id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
