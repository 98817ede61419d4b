package tickeralarm

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotAuthorized means the device alarm permission is not granted
	ErrNotAuthorized = errors.New("alarm scheduling not authorized")

	// ErrInvalidConfiguration means a ticker cannot be turned into an alarm
	ErrInvalidConfiguration = errors.New("invalid alarm configuration")

	// ErrSchedulingFailed means the device scheduler rejected a call
	ErrSchedulingFailed = errors.New("alarm scheduling failed")

	// ErrStoreSaveFailed means the durable store could not commit
	ErrStoreSaveFailed = errors.New("store save failed")

	// ErrTickerNotFound means no ticker with the given identity exists
	ErrTickerNotFound = errors.New("ticker not found")
)

// SchedulingError wraps a device scheduler failure for one alarm
type SchedulingError struct {
	Op      string
	AlarmID uuid.UUID
	Err     error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("%s alarm %s: %v", e.Op, e.AlarmID, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

func (e *SchedulingError) Is(target error) bool { return target == ErrSchedulingFailed }

// StoreError wraps a failed durable store commit
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%v: %v", ErrStoreSaveFailed, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreSaveFailed }

// InvalidConfiguration wraps reason so that it matches ErrInvalidConfiguration
func InvalidConfiguration(reason error) error {
	return fmt.Errorf("%w: %v", ErrInvalidConfiguration, reason)
}
