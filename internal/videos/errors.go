package videos

import (
	"errors"
	"fmt"
)

var (
	ErrUnreadableMedia      = errors.New("unreadable media")
	ErrDurationExceeded     = errors.New("duration exceeds limit")
	ErrEncodeFailure        = errors.New("encode failed")
	ErrUploadFailure        = errors.New("upload failed")
	ErrStorageDeleteFailure = errors.New("storage delete failed")
	ErrInvalidQueueState    = errors.New("invalid queue state")
	ErrVideoNotFound        = errors.New("video not found")
	ErrVideoCancelled       = errors.New("video cancelled")
	ErrRetryLimitExceeded   = errors.New("retry limit exceeded")
	ErrLeaseLost            = errors.New("job lease lost")
)

// EncodeError is a per-quality encoder failure.
type EncodeError struct {
	Quality string
	Message string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %s", e.Quality, e.Message)
}

func (e *EncodeError) Unwrap() error {
	return ErrEncodeFailure
}

// IsRetryable tells the queue whether a failed job may be attempted again.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUnreadableMedia),
		errors.Is(err, ErrDurationExceeded),
		errors.Is(err, ErrVideoNotFound),
		errors.Is(err, ErrVideoCancelled),
		errors.Is(err, ErrLeaseLost),
		errors.Is(err, ErrRetryLimitExceeded):
		return false
	}
	return true
}
