package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTooSoon            = errors.New("too soon")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCoordinatorStopped = errors.New("coordinator stopped")
	ErrTooManySubscribers = errors.New("too many subscribers")
)

// TooSoonError is returned by a reset that arrives inside the minimum interval.
// It matches ErrTooSoon with errors.Is.
type TooSoonError struct {
	RetryAfter time.Duration
}

func (e *TooSoonError) Error() string {
	return fmt.Sprintf("too soon: retry in %s", e.RetryAfter)
}

func (e *TooSoonError) Is(target error) bool {
	return target == ErrTooSoon
}
