package engine

import (
	"context"

	"chatd/pkg/types"
)

// Runtime abstracts the model backend used by the Manager. Concrete
// implementations (e.g., llama.cpp) satisfy this interface; tests supply
// scripted fakes.
type Runtime interface {
	// New constructs a generator from the given config. Construction is
	// the heavyweight step (weight loading, context allocation).
	New(cfg types.ModelConfig) (Generator, error)
}

// Generator is one loaded engine instance. It is never shared: the gate
// guarantees a single caller at a time, and the Manager owns its lifecycle.
type Generator interface {
	// Generate produces a response for prompt given the prior history.
	// onToken, when non-nil, is invoked for each decoded fragment in order;
	// returning an error from it stops generation. Implementations must
	// return promptly when ctx is canceled.
	Generate(ctx context.Context, prompt string, history []types.ChatMessage, onToken func(string) error) (string, error)
	// Close releases all resources held by the engine.
	Close() error
}
