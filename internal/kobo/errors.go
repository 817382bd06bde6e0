package kobo

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the asset or record does not exist upstream.
var ErrNotFound = errors.New("kobo: not found")

// Error is a non-retryable error response from the API.
type Error struct {
	Status int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("kobo: status %d: %s", e.Status, e.Msg)
}

// TransientError wraps failures that may succeed on retry: network errors,
// rate limiting and 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("kobo: transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err or anything it wraps is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
