// Package bunt implements domain store interfaces on an embedded BuntDB
// database, for single-node deployments that do not run PostgreSQL.
package bunt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/buntdb"
)

const (
	marketPrefix = "market:"
	userPrefix   = "user:"
	marketSeqKey = "seq:market"

	// Secondary indexes over tracked markets. BuntDB keeps indexes in
	// memory, so Open rebuilds them on every start.
	activeIndex = "tracked_active"
	userIndex   = "tracked_user"
)

// DB wraps a buntdb database shared by the stores of this package.
type DB struct {
	db *buntdb.DB
}

// Open opens (or creates) the database at path. Use ":memory:" for a
// non-persistent database.
func Open(path string) (*DB, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bunt: open %s: %w", path, err)
	}
	indexes := map[string]string{
		activeIndex: "is_active",
		userIndex:   "user_id",
	}
	for name, field := range indexes {
		if err := db.CreateIndex(name, marketPrefix+"*", buntdb.IndexJSON(field)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bunt: create index %s: %w", name, err)
		}
	}
	return &DB{db: db}, nil
}

// Memory opens an in-memory database.
func Memory() (*DB, error) {
	return Open(":memory:")
}

// Ping reports whether the database can still serve reads.
func (d *DB) Ping(_ context.Context) error {
	if err := d.db.View(func(*buntdb.Tx) error { return nil }); err != nil {
		return fmt.Errorf("bunt: ping: %w", err)
	}
	return nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// marketKey zero-pads the id so key order matches id order.
func marketKey(id int64) string {
	return fmt.Sprintf("%s%020d", marketPrefix, id)
}

func userKey(id int64) string {
	return userPrefix + strconv.FormatInt(id, 10)
}

// nextID increments and returns the sequence stored under key.
func nextID(tx *buntdb.Tx, key string) (int64, error) {
	var last int64
	raw, err := tx.Get(key)
	switch {
	case errors.Is(err, buntdb.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		last, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt sequence %s: %w", key, err)
		}
	}
	last++
	if _, _, err := tx.Set(key, strconv.FormatInt(last, 10), nil); err != nil {
		return 0, err
	}
	return last, nil
}

func getJSON(tx *buntdb.Tx, key string, v any) error {
	raw, err := tx.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}

func setJSON(tx *buntdb.Tx, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(key, string(data), nil)
	return err
}
