package locker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLockAlreadyHeld is returned by a single acquire attempt when another
	// holder owns a live record for the key. It is the only error retried.
	ErrLockAlreadyHeld = errors.New("lock already held")

	// ErrAcquisitionTimeout is matched by errors returned when a retry policy
	// is exhausted without acquiring the lock.
	ErrAcquisitionTimeout = errors.New("lock acquisition timed out")

	// ErrBackendUnavailable is matched by errors raised when the coordination
	// medium cannot be reached or queried.
	ErrBackendUnavailable = errors.New("lock backend unavailable")

	// ErrInvalidParameters is matched by errors raised for a malformed key or
	// a non-positive duration.
	ErrInvalidParameters = errors.New("invalid lock parameters")
)

// Kind classifies lock errors so callers can branch on them.
type Kind int

const (
	KindNone Kind = iota
	KindAlreadyHeld
	KindTimeout
	KindBackendUnavailable
	KindInvalidParameters
	KindCanceled
	KindUnknown
)

// String returns the stable code used in logs and API responses.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindAlreadyHeld:
		return "LOCK_ALREADY_HELD"
	case KindTimeout:
		return "LOCK_ACQUISITION_TIMEOUT"
	case KindBackendUnavailable:
		return "BACKEND_UNAVAILABLE"
	case KindInvalidParameters:
		return "INVALID_LOCK_PARAMETERS"
	case KindCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// KindOf returns the Kind of err. A timeout wraps the last contention error,
// so it is checked before KindAlreadyHeld.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidParameters):
		return KindInvalidParameters
	case errors.Is(err, ErrAcquisitionTimeout):
		return KindTimeout
	case errors.Is(err, ErrBackendUnavailable):
		return KindBackendUnavailable
	case errors.Is(err, ErrLockAlreadyHeld):
		return KindAlreadyHeld
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// TimeoutError is returned when a RetryPolicy gives up.
type TimeoutError struct {
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s) in %s: %v", ErrAcquisitionTimeout, e.Attempts, e.Elapsed, e.Last)
}

// Is makes errors.Is(err, ErrAcquisitionTimeout) true.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrAcquisitionTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.Last
}

// BackendError describes a failure of the coordination medium itself.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, ErrBackendUnavailable, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Err}
}

// Unavailable wraps err as a BackendError for the named backend operation.
func Unavailable(backend, op string, err error) error {
	return &BackendError{Backend: backend, Op: op, Err: err}
}

// invalid wraps a validation failure so it matches ErrInvalidParameters.
func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
}
