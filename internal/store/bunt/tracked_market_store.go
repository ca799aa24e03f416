package bunt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/alanyoungcy/polyalert/internal/domain"
)

// trackedRecord is the stored JSON form of a tracked market.
type trackedRecord struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	MarketID    string    `json:"market_id"`
	TokenID     string    `json:"token_id,omitempty"`
	URL         string    `json:"market_url"`
	Title       string    `json:"market_title,omitempty"`
	TargetPrice int       `json:"target_price"`
	Condition   string    `json:"condition"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func toRecord(m domain.TrackedMarket) trackedRecord {
	return trackedRecord{
		ID:          m.ID,
		UserID:      m.UserID,
		MarketID:    m.MarketID,
		TokenID:     m.TokenID,
		URL:         m.URL,
		Title:       m.Title,
		TargetPrice: m.TargetPrice,
		Condition:   string(m.Condition),
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
	}
}

func (r trackedRecord) toDomain() domain.TrackedMarket {
	return domain.TrackedMarket{
		ID:          r.ID,
		UserID:      r.UserID,
		MarketID:    r.MarketID,
		TokenID:     r.TokenID,
		URL:         r.URL,
		Title:       r.Title,
		TargetPrice: r.TargetPrice,
		Condition:   domain.Condition(r.Condition),
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
}

// TrackedMarketStore implements domain.TrackedMarketStore on BuntDB.
type TrackedMarketStore struct {
	db  *DB
	now func() time.Time
}

var _ domain.TrackedMarketStore = (*TrackedMarketStore)(nil)

// NewTrackedMarketStore creates a TrackedMarketStore on db.
func NewTrackedMarketStore(db *DB) *TrackedMarketStore {
	return &TrackedMarketStore{db: db, now: time.Now}
}

// Create assigns the next id and creation time and stores m.
func (s *TrackedMarketStore) Create(_ context.Context, m domain.TrackedMarket) (domain.TrackedMarket, error) {
	err := s.db.db.Update(func(tx *buntdb.Tx) error {
		id, err := nextID(tx, marketSeqKey)
		if err != nil {
			return err
		}
		m.ID = id
		m.CreatedAt = s.now().UTC()
		return setJSON(tx, marketKey(id), toRecord(m))
	})
	if err != nil {
		return domain.TrackedMarket{}, fmt.Errorf("bunt: create tracked market %s for user %d: %w", m.MarketID, m.UserID, err)
	}
	return m, nil
}

// GetByID retrieves a tracked market by id.
func (s *TrackedMarketStore) GetByID(_ context.Context, id int64) (domain.TrackedMarket, error) {
	var rec trackedRecord
	err := s.db.db.View(func(tx *buntdb.Tx) error {
		return getJSON(tx, marketKey(id), &rec)
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return domain.TrackedMarket{}, domain.ErrNotFound
		}
		return domain.TrackedMarket{}, fmt.Errorf("bunt: get tracked market %d: %w", id, err)
	}
	return rec.toDomain(), nil
}

// scanEqual visits the tracked markets whose indexed field equals pivot, in
// ascending id order, until fn returns false. pivot is a JSON document
// holding just the indexed field.
func (s *TrackedMarketStore) scanEqual(index, pivot string, fn func(trackedRecord) bool) error {
	return s.db.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.AscendEqual(index, pivot, func(key, value string) bool {
			var rec trackedRecord
			if err := json.Unmarshal([]byte(value), &rec); err != nil {
				decodeErr = fmt.Errorf("decode %s: %w", key, err)
				return false
			}
			return fn(rec)
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
}

func (s *TrackedMarketStore) scanUser(userID int64, fn func(trackedRecord) bool) error {
	return s.scanEqual(userIndex, fmt.Sprintf(`{"user_id":%d}`, userID), fn)
}

// GetByUserAndMarketID returns the lowest-id subscription of userID to
// marketID.
func (s *TrackedMarketStore) GetByUserAndMarketID(_ context.Context, userID int64, marketID string) (domain.TrackedMarket, error) {
	var (
		found trackedRecord
		ok    bool
	)
	err := s.scanUser(userID, func(rec trackedRecord) bool {
		if rec.MarketID == marketID {
			found, ok = rec, true
			return false
		}
		return true
	})
	if err != nil {
		return domain.TrackedMarket{}, fmt.Errorf("bunt: get tracked market %s for user %d: %w", marketID, userID, err)
	}
	if !ok {
		return domain.TrackedMarket{}, domain.ErrNotFound
	}
	return found.toDomain(), nil
}

// ListByUser returns the user's tracked markets, newest first.
func (s *TrackedMarketStore) ListByUser(_ context.Context, userID int64) ([]domain.TrackedMarket, error) {
	var out []domain.TrackedMarket
	err := s.scanUser(userID, func(rec trackedRecord) bool {
		out = append(out, rec.toDomain())
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("bunt: list tracked markets for user %d: %w", userID, err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ListActive returns every active tracked market.
func (s *TrackedMarketStore) ListActive(_ context.Context) ([]domain.TrackedMarket, error) {
	var out []domain.TrackedMarket
	err := s.scanEqual(activeIndex, `{"is_active":true}`, func(rec trackedRecord) bool {
		out = append(out, rec.toDomain())
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("bunt: list active tracked markets: %w", err)
	}
	return out, nil
}

// update applies mutate to the stored record under a write transaction.
func (s *TrackedMarketStore) update(id int64, mutate func(*trackedRecord)) (domain.TrackedMarket, error) {
	var rec trackedRecord
	err := s.db.db.Update(func(tx *buntdb.Tx) error {
		if err := getJSON(tx, marketKey(id), &rec); err != nil {
			return err
		}
		mutate(&rec)
		return setJSON(tx, marketKey(id), rec)
	})
	if err != nil {
		return domain.TrackedMarket{}, err
	}
	return rec.toDomain(), nil
}

// UpdateTargetPrice sets the target and condition of a tracked market.
func (s *TrackedMarketStore) UpdateTargetPrice(_ context.Context, id int64, target int, cond domain.Condition) (domain.TrackedMarket, error) {
	m, err := s.update(id, func(r *trackedRecord) {
		r.TargetPrice = target
		r.Condition = string(cond)
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return domain.TrackedMarket{}, domain.ErrNotFound
		}
		return domain.TrackedMarket{}, fmt.Errorf("bunt: update target of tracked market %d: %w", id, err)
	}
	return m, nil
}

// UpdateStatus switches monitoring of a tracked market on or off.
func (s *TrackedMarketStore) UpdateStatus(_ context.Context, id int64, active bool) (domain.TrackedMarket, error) {
	m, err := s.update(id, func(r *trackedRecord) {
		r.Active = active
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return domain.TrackedMarket{}, domain.ErrNotFound
		}
		return domain.TrackedMarket{}, fmt.Errorf("bunt: update status of tracked market %d: %w", id, err)
	}
	return m, nil
}

// Delete removes a tracked market. Deleting a missing id is a no-op.
func (s *TrackedMarketStore) Delete(_ context.Context, id int64) error {
	err := s.db.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(marketKey(id))
		return err
	})
	if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
		return fmt.Errorf("bunt: delete tracked market %d: %w", id, err)
	}
	return nil
}
