package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"adapterd/pkg/types"
)

// MemoryEngine is a deterministic in-process engine. It is the required
// collaborator double for tests and the default backend for builds without
// the llama tag: no silent degradation, the operator picks it explicitly.
type MemoryEngine struct {
	// BuildDelay is added to every Compose call to exercise timeout and
	// single-flight paths.
	BuildDelay time.Duration
	// OnBuild, when set, runs before each build and may inject a failure.
	OnBuild func(adapterIDs []string) error

	builds int64
}

// NewMemoryEngine returns a MemoryEngine with no artificial delay.
func NewMemoryEngine() *MemoryEngine { return &MemoryEngine{} }

func (e *MemoryEngine) Kind() string { return "memory" }

// Builds returns the number of completed Compose calls.
func (e *MemoryEngine) Builds() int64 { return atomic.LoadInt64(&e.builds) }

func (e *MemoryEngine) Compose(ctx context.Context, adapters []types.AdapterDescriptor, strategy types.Strategy) (Handle, error) {
	ids := make([]string, len(adapters))
	for i, d := range adapters {
		ids[i] = d.ID
	}
	if e.OnBuild != nil {
		if err := e.OnBuild(ids); err != nil {
			return nil, err
		}
	}
	if e.BuildDelay > 0 {
		select {
		case <-time.After(e.BuildDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	atomic.AddInt64(&e.builds, 1)
	return &memoryHandle{tag: strings.Join(ids, "+") + "|" + string(strategy)}, nil
}

type memoryHandle struct {
	tag    string
	closed int32
}

func (h *memoryHandle) Generate(ctx context.Context, prompt string) (string, error) {
	if atomic.LoadInt32(&h.closed) != 0 {
		return "", ErrDependencyUnavailable("handle closed: " + h.tag)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return "[" + h.tag + "] " + prompt, nil
}

func (h *memoryHandle) Close() error {
	atomic.StoreInt32(&h.closed, 1)
	return nil
}
