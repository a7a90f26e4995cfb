package badger

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/hkbertoson/dayssincetags/internal/adapter/metrics"
	"github.com/hkbertoson/dayssincetags/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() {
		if !db.IsClosed() {
			_ = db.Close()
		}
	})
	return db
}

func TestTagStore_LoadEmpty(t *testing.T) {
	store := NewTagStore(setupTestDB(t), nil)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, stored.HasLastReset)
	assert.Nil(t, stored.Streaks)
}

func TestTagStore_SaveThenLoad(t *testing.T) {
	store := NewTagStore(setupTestDB(t), nil)
	ctx := context.Background()

	status := domain.TagStatus{LastReset: 1_700_000_122_000, Streaks: []int64{1_700_000_061_000, 1_700_000_000_000}}
	require.NoError(t, store.Save(ctx, status))

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, stored.HasLastReset)
	assert.Equal(t, status.LastReset, stored.LastReset)
	assert.Equal(t, status.Streaks, stored.Streaks)
}

func TestTagStore_EmptyStreaksStoredAsArray(t *testing.T) {
	db := setupTestDB(t)
	store := NewTagStore(db, nil)
	require.NoError(t, store.Save(context.Background(), domain.TagStatus{LastReset: 5}))

	err := db.View(func(txn *badger.Txn) error {
		raw, found, err := get(txn, streaksKey)
		require.True(t, found)
		assert.Equal(t, "[]", string(raw))
		return err
	})
	require.NoError(t, err)
}

func TestTagStore_LoadRejectsCorruptValue(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set(lastResetKey, []byte("yesterday"))
	}))

	_, err := NewTagStore(db, nil).Load(context.Background())
	assert.Error(t, err)
}

func TestTagStore_CancelledContext(t *testing.T) {
	store := NewTagStore(setupTestDB(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Save(ctx, domain.TagStatus{LastReset: 1}), context.Canceled)
}

func TestTagStore_PingAfterClose(t *testing.T) {
	store := NewTagStore(setupTestDB(t), nil)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())
	assert.Error(t, store.Ping(ctx))
}

func TestTagStore_RecordsMetrics(t *testing.T) {
	storageMetrics := metrics.NewStorageMetrics(prometheus.NewRegistry())
	store := NewTagStore(setupTestDB(t), storageMetrics)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.TagStatus{LastReset: 1}))
	_, err := store.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(storageMetrics.Operations.WithLabelValues(backendName, "save", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(storageMetrics.Operations.WithLabelValues(backendName, "load", "success")))
}
