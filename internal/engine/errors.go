package engine

import "errors"

// loadError signals that constructing an engine from a config failed.
// The manager is guaranteed to be in the unloaded state afterwards.
type loadError struct{ cause error }

func (e loadError) Error() string { return "engine load failed: " + e.cause.Error() }
func (e loadError) Unwrap() error { return e.cause }

// ErrLoadFailed wraps the underlying construction failure.
func ErrLoadFailed(cause error) error { return loadError{cause: cause} }

// IsLoadFailed reports whether err comes from a failed engine construction.
func IsLoadFailed(err error) bool {
	var e loadError
	return errors.As(err, &e)
}

// inferenceError signals that the loaded engine failed mid-generation.
// The engine has already been unloaded when this error surfaces.
type inferenceError struct{ cause error }

func (e inferenceError) Error() string { return "inference failed: " + e.cause.Error() }
func (e inferenceError) Unwrap() error { return e.cause }

// ErrInference wraps an engine failure observed during generation.
func ErrInference(cause error) error { return inferenceError{cause: cause} }

// IsInference reports whether err indicates a mid-generation engine failure.
func IsInference(err error) bool {
	var e inferenceError
	return errors.As(err, &e)
}

// notLoadedError signals that an operation required a loaded engine.
type notLoadedError struct{}

func (notLoadedError) Error() string { return "no engine loaded" }

// ErrNotLoaded is returned when generation is requested with no engine.
func ErrNotLoaded() error { return notLoadedError{} }

// IsNotLoaded reports whether err indicates the manager holds no engine.
func IsNotLoaded(err error) bool {
	var e notLoadedError
	return errors.As(err, &e)
}

// busyError signals gate admission timeout for 429 mapping.
type busyError struct{}

func (busyError) Error() string { return "engine busy: gate wait timed out" }

// ErrBusy is returned when a caller could not acquire the gate in time.
func ErrBusy() error { return busyError{} }

// IsBusy reports whether err indicates backpressure (return 429).
func IsBusy(err error) bool {
	var e busyError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing runtime dependency (e.g.,
// a binary built without llama support) so the HTTP layer can return 503.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}
