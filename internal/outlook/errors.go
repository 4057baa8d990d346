package outlook

import (
	"errors"
	"fmt"
)

// ErrRemoteUnavailable marks failures to reach or complete a call against
// the Graph API (network errors, timeouts, 5xx). Availability must never be
// guessed when this fires.
var ErrRemoteUnavailable = errors.New("outlook unavailable")

// ErrNotFound marks a remote event that no longer exists.
var ErrNotFound = errors.New("outlook event not found")

// RemoteRejectedError carries a client-error response from the Graph API.
type RemoteRejectedError struct {
	StatusCode int
	Reason     string
}

func (e RemoteRejectedError) Error() string {
	return fmt.Sprintf("outlook rejected request: %d: %s", e.StatusCode, e.Reason)
}
