package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStarted is returned by Send before Start or after Stop.
	ErrNotStarted = errors.New("transport not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("transport already started")

	// ErrNoSocket is returned when no socket matches the endpoint's family
	// and secure flag.
	ErrNoSocket = errors.New("no socket for endpoint")

	// ErrNoSecureChannel is returned by Send for a secure endpoint when no
	// SecureChannel is attached.
	ErrNoSecureChannel = errors.New("no secure channel")
)

// SetupError reports a required socket that could not be opened during
// Start.
type SetupError struct {
	Role Role
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("open %s socket: %v", e.Role, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
