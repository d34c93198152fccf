package cocoro

import (
	"errors"
	"fmt"
)

// The client surfaces exactly three error kinds. Transport details never
// escape the request helper; callers branch with the Is* predicates.

// AuthError covers invalid credentials, an expired or revoked session, and
// any 401/403 response. Retrying without fresh credentials cannot succeed.
type AuthError struct {
	msg string
}

func (e *AuthError) Error() string { return e.msg }

// NewAuthError builds an AuthError; exported so fakes in tests can produce
// the same classification the real client does.
func NewAuthError(format string, args ...any) *AuthError {
	return &AuthError{msg: fmt.Sprintf(format, args...)}
}

// ConnectionError covers transport-level failures: DNS, connect, timeout.
// These are transient and worth retrying.
type ConnectionError struct {
	msg string
	err error
}

func (e *ConnectionError) Error() string { return e.msg }
func (e *ConnectionError) Unwrap() error { return e.err }

func NewConnectionError(err error, format string, args ...any) *ConnectionError {
	return &ConnectionError{msg: fmt.Sprintf(format, args...), err: err}
}

// APIError covers every other non-2xx response plus caller mistakes such
// as an unrecognized mode name.
type APIError struct {
	msg string
}

func (e *APIError) Error() string { return e.msg }

func NewAPIError(format string, args ...any) *APIError {
	return &APIError{msg: fmt.Sprintf(format, args...)}
}

func IsAuth(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

func IsConnection(err error) bool {
	var e *ConnectionError
	return errors.As(err, &e)
}

func IsAPI(err error) bool {
	var e *APIError
	return errors.As(err, &e)
}
