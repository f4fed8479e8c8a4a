//go:build !llama

package engine

// This file provides a no-CGO stub for the llama engine. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.

import (
	"context"

	"adapterd/pkg/types"
)

var llamaBuilt = false

// LlamaEngine refuses to compose without the 'llama' build tag. This avoids
// any mocked behavior in production binaries built without CGO support.
type LlamaEngine struct {
	basePath string
	ctxSize  int
	threads  int
}

func NewLlamaEngine(basePath string, ctxSize, threads int) *LlamaEngine {
	return &LlamaEngine{basePath: basePath, ctxSize: ctxSize, threads: threads}
}

func (e *LlamaEngine) Kind() string { return "llama" }

func (e *LlamaEngine) Compose(ctx context.Context, adapters []types.AdapterDescriptor, strategy types.Strategy) (Handle, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
