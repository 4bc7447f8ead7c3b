package chat

import "errors"

// validationError rejects a request before any side effect.
type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

// ErrValidation constructs a validation failure.
func ErrValidation(msg string) error { return validationError{msg: msg} }

// IsValidation reports whether err is a request validation failure (400).
func IsValidation(err error) bool {
	var e validationError
	return errors.As(err, &e)
}

// notFoundError signals a referenced session does not exist.
type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "session not found: " + e.id }

// ErrSessionNotFound constructs a not-found failure for a session id.
func ErrSessionNotFound(id string) error { return notFoundError{id: id} }

// IsNotFound reports whether err is a missing-session failure (404).
func IsNotFound(err error) bool {
	var e notFoundError
	return errors.As(err, &e)
}
