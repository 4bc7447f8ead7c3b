// Package engine owns the lifecycle of the single loaded text-generation
// engine and the gate that serializes all inference against it.
//
// At most one engine exists at any time. Load is idempotent for a
// structurally equal config and always tears down the previous engine
// before constructing a new one. A generation failure invalidates the
// engine: it is unloaded before the error reaches the caller, because an
// engine that failed once is assumed to be in an unknown state.
package engine
