// Package engine defines the inference-engine collaborator: given an ordered
// adapter stack and a merge strategy it produces an opaque generation handle.
// Concrete implementations: an in-memory engine for tests and development,
// and a llama.cpp-backed engine behind the 'llama' build tag.
package engine

import (
	"context"

	"adapterd/pkg/types"
)

// Engine builds composition handles.
type Engine interface {
	// Compose merges the adapter stack under the given strategy and returns
	// a ready-to-generate handle. Implementations must return promptly when
	// ctx is canceled.
	Compose(ctx context.Context, adapters []types.AdapterDescriptor, strategy types.Strategy) (Handle, error)
	// Kind identifies the backend ("memory", "llama") for status reporting.
	Kind() string
}

// Handle is an inference-ready composition. The composition cache owns the
// handle and closes it once the entry is evicted and unreferenced.
type Handle interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Close() error
}

// dependencyUnavailableError signals a missing runtime dependency so the
// HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}
