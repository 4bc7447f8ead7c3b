//go:build !llama

package engine

// This file provides a no-CGO stub for the llama runtime. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds and CI
// CGO-free. The real runtime lives in llama.go (tagged 'llama').

import (
	"chatd/pkg/types"
)

// llamaBuilt indicates whether this binary was compiled with real llama support.
var llamaBuilt = false

type llamaRuntime struct {
	threads int
}

// NewLlamaRuntime returns a stub that satisfies Runtime but refuses to
// construct engines without the 'llama' build tag. This avoids any mocked
// inference in production binaries built without CGO support.
func NewLlamaRuntime(threads int) Runtime {
	return &llamaRuntime{threads: threads}
}

func (r *llamaRuntime) New(cfg types.ModelConfig) (Generator, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
