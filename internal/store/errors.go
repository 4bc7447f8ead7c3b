package store

// persistenceError wraps a failed storage round-trip. By the time it
// surfaces, in-memory state may be ahead of the store; the gap is
// documented, not repaired.
type persistenceError struct {
	op    string
	cause error
}

func (e persistenceError) Error() string { return "store: " + e.op + ": " + e.cause.Error() }
func (e persistenceError) Unwrap() error { return e.cause }

func persistErr(op string, cause error) error {
	return persistenceError{op: op, cause: cause}
}

// IsPersistence reports whether err is a storage failure.
func IsPersistence(err error) bool {
	_, ok := err.(persistenceError)
	return ok
}
