package bunt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

type userRecord struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStore implements domain.UserStore on BuntDB.
type UserStore struct {
	db  *DB
	now func() time.Time
}

var _ domain.UserStore = (*UserStore)(nil)

// NewUserStore creates a UserStore on db.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db, now: time.Now}
}

// Upsert inserts the user or refreshes their username and full name.
func (s *UserStore) Upsert(_ context.Context, u domain.User) (domain.User, error) {
	var rec userRecord
	err := s.db.db.Update(func(tx *buntdb.Tx) error {
		err := getJSON(tx, userKey(u.ID), &rec)
		switch {
		case errors.Is(err, buntdb.ErrNotFound):
			rec = userRecord{ID: u.ID, CreatedAt: s.now().UTC()}
		case err != nil:
			return err
		}
		rec.Username = u.Username
		rec.FullName = u.FullName
		return setJSON(tx, userKey(u.ID), rec)
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("bunt: upsert user %d: %w", u.ID, err)
	}
	return domain.User(rec), nil
}

// GetByID retrieves a user by Telegram id.
func (s *UserStore) GetByID(_ context.Context, id int64) (domain.User, error) {
	var rec userRecord
	err := s.db.db.View(func(tx *buntdb.Tx) error {
		return getJSON(tx, userKey(id), &rec)
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("bunt: get user %d: %w", id, err)
	}
	return domain.User(rec), nil
}
