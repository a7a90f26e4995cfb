package domain

import (
	"context"
	"slices"
	"time"

	"github.com/samber/lo"
)

const (
	// MinResetInterval is the shortest allowed gap between two successful resets.
	MinResetInterval = 60 * time.Second
	// MaxStreaks bounds the reset history.
	MaxStreaks = 10

	UpdateTypeUpdate = "update"
)

// TagStatus is the authoritative tag state. Timestamps are Unix milliseconds.
// Streaks holds superseded LastReset values, newest first.
type TagStatus struct {
	LastReset int64   `json:"lastReset"`
	Streaks   []int64 `json:"streaks"`
}

// Clone returns a deep copy with a non-nil Streaks slice.
func (s TagStatus) Clone() TagStatus {
	streaks := make([]int64, len(s.Streaks))
	copy(streaks, s.Streaks)
	return TagStatus{LastReset: s.LastReset, Streaks: streaks}
}

// Advance archives the current LastReset and moves it to nowMs.
// The receiver is not modified.
func (s TagStatus) Advance(nowMs int64) TagStatus {
	streaks := slices.Concat([]int64{s.LastReset}, s.Streaks)
	return TagStatus{
		LastReset: nowMs,
		Streaks:   lo.Slice(streaks, 0, MaxStreaks),
	}
}

// Update builds the message pushed to subscribers.
func (s TagStatus) Update() TagUpdate {
	c := s.Clone()
	return TagUpdate{Type: UpdateTypeUpdate, LastReset: c.LastReset, Streaks: c.Streaks}
}

// TagUpdate is the snapshot and broadcast message.
type TagUpdate struct {
	Type      string  `json:"type"`
	LastReset int64   `json:"lastReset"`
	Streaks   []int64 `json:"streaks"`
}

// StoredTag is what a TagStore holds. Keys that were never written are reported
// as HasLastReset == false and a nil Streaks.
type StoredTag struct {
	LastReset    int64
	HasLastReset bool
	Streaks      []int64
}

// TagStore persists the tag state under the lastReset and streaks keys.
// Implementations must give read-your-writes consistency and write both keys atomically.
type TagStore interface {
	Load(ctx context.Context) (StoredTag, error)
	Save(ctx context.Context, status TagStatus) error
}
