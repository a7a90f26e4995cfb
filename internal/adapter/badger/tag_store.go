// Package badger implements the tag store on an embedded Badger database.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/hkbertoson/dayssincetags/internal/adapter/metrics"
	"github.com/hkbertoson/dayssincetags/internal/domain"
)

const backendName = "badger"

var (
	lastResetKey = []byte("lastReset")
	streaksKey   = []byte("streaks")
)

// Open opens (or creates) the database directory at path.
func Open(path string) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return db, nil
}

// TagStore keeps lastReset as a decimal string and streaks as a JSON array.
type TagStore struct {
	db      *badger.DB
	metrics *metrics.StorageMetrics
}

var _ domain.TagStore = (*TagStore)(nil)

func NewTagStore(db *badger.DB, storageMetrics *metrics.StorageMetrics) *TagStore {
	return &TagStore{db: db, metrics: storageMetrics}
}

func (s *TagStore) Load(ctx context.Context) (stored domain.StoredTag, err error) {
	defer s.observe("load", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return domain.StoredTag{}, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		raw, found, err := get(txn, lastResetKey)
		if err != nil {
			return err
		}
		if found {
			lastReset, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return fmt.Errorf("parse %s %q: %w", lastResetKey, raw, err)
			}
			stored.LastReset = lastReset
			stored.HasLastReset = true
		}

		raw, found, err = get(txn, streaksKey)
		if err != nil || !found {
			return err
		}
		if err := json.Unmarshal(raw, &stored.Streaks); err != nil {
			return fmt.Errorf("decode %s: %w", streaksKey, err)
		}
		return nil
	})
	if err != nil {
		return domain.StoredTag{}, fmt.Errorf("load tag: %w", err)
	}
	return stored, nil
}

// Save writes both keys in one transaction.
func (s *TagStore) Save(ctx context.Context, status domain.TagStatus) (err error) {
	defer s.observe("save", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}

	streaks, err := json.Marshal(status.Clone().Streaks)
	if err != nil {
		return fmt.Errorf("encode %s: %w", streaksKey, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(lastResetKey, []byte(strconv.FormatInt(status.LastReset, 10))); err != nil {
			return err
		}
		return txn.Set(streaksKey, streaks)
	})
	if err != nil {
		return fmt.Errorf("save tag: %w", err)
	}
	return nil
}

// Ping fails once the database has been closed.
func (s *TagStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database closed")
	}
	return nil
}

func (s *TagStore) Close() error {
	return s.db.Close()
}

func (s *TagStore) observe(operation string, start time.Time, err *error) {
	if s.metrics != nil {
		s.metrics.Observe(backendName, operation, time.Since(start).Seconds(), *err)
	}
}

func get(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}
