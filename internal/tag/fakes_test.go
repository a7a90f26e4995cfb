package tag

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hkbertoson/dayssincetags/internal/adapter/metrics"
	"github.com/hkbertoson/dayssincetags/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory domain.TagStore with error injection.
type memoryStore struct {
	mu        sync.Mutex
	stored    domain.StoredTag
	loadErr   error
	saveErr   error
	saves     int
	loadGate  chan struct{} // Load blocks until closed, when set
}

func (s *memoryStore) Load(ctx context.Context) (domain.StoredTag, error) {
	if s.loadGate != nil {
		select {
		case <-s.loadGate:
		case <-ctx.Done():
			return domain.StoredTag{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return domain.StoredTag{}, s.loadErr
	}
	return s.stored, nil
}

func (s *memoryStore) Save(_ context.Context, status domain.TagStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.stored = domain.StoredTag{LastReset: status.LastReset, HasLastReset: true, Streaks: status.Clone().Streaks}
	return nil
}

func (s *memoryStore) setSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func (s *memoryStore) snapshot() (domain.StoredTag, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored, s.saves
}

// fakeSubscriber records every message it is sent.
type fakeSubscriber struct {
	id       string
	messages chan []byte
	sendErr  error

	mu          sync.Mutex
	closed      bool
	closeReason string
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id, messages: make(chan []byte, 64)}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(data []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages <- data
	return nil
}

func (f *fakeSubscriber) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeReason = reason
}

func (f *fakeSubscriber) isClosed() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeReason
}

var errSendFailed = errors.New("broken pipe")

// nextUpdate reads one message or fails the test.
func (f *fakeSubscriber) nextUpdate(t *testing.T) domain.TagUpdate {
	t.Helper()
	select {
	case data := <-f.messages:
		var update domain.TagUpdate
		require.NoError(t, json.Unmarshal(data, &update))
		return update
	case <-time.After(time.Second):
		t.Fatalf("subscriber %s received no message", f.id)
		return domain.TagUpdate{}
	}
}

func (f *fakeSubscriber) pending() int {
	return len(f.messages)
}

const t0 = int64(1_700_000_000_000)

// newTestCoordinator starts a coordinator over store with a fake clock at t0.
func newTestCoordinator(t *testing.T, store *memoryStore, maxSubscribers int) (*Coordinator, *clockwork.FakeClock, *metrics.TagMetrics) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.UnixMilli(t0))
	tagMetrics := metrics.NewTagMetrics(prometheus.NewRegistry())
	c := New(store, clock, tagMetrics, maxSubscribers)
	t.Cleanup(c.Stop)

	return c, clock, tagMetrics
}

func waitReady(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.WaitReady(ctx))
}
