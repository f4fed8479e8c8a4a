//go:build llama

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"adapterd/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// LlamaEngine composes against llama.cpp. Adapter training ships merged
// weight artifacts (base + adapter stack folded into one model file); the
// engine loads the stack's artifact, falling back to the plain base model
// when a composition has no artifact of its own.
type LlamaEngine struct {
	basePath string
	ctxSize  int
	threads  int
}

// NewLlamaEngine configures the llama.cpp backend.
func NewLlamaEngine(basePath string, ctxSize, threads int) *LlamaEngine {
	return &LlamaEngine{basePath: basePath, ctxSize: ctxSize, threads: threads}
}

func (e *LlamaEngine) Kind() string { return "llama" }

func (e *LlamaEngine) Compose(ctx context.Context, adapters []types.AdapterDescriptor, strategy types.Strategy) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := e.artifactFor(adapters)
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("no weight artifact for composition and no base model configured")
	}
	m, err := llama.New(path, llama.SetContext(e.ctxSize))
	if err != nil {
		return nil, err
	}
	return &llamaHandle{model: m, threads: e.threads}, nil
}

// artifactFor picks the merged artifact: the innermost adapter carrying an
// artifact path wins, else the base model.
func (e *LlamaEngine) artifactFor(adapters []types.AdapterDescriptor) string {
	for i := len(adapters) - 1; i >= 0; i-- {
		if adapters[i].ArtifactPath != "" {
			return adapters[i].ArtifactPath
		}
	}
	return e.basePath
}

type llamaHandle struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
}

func (h *llamaHandle) Generate(ctx context.Context, prompt string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model == nil {
		return "", ErrDependencyUnavailable("llama model released")
	}
	h.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	text, err := h.model.Predict(prompt,
		llama.SetThreads(maxInt(1, h.threads)),
		llama.SetTokens(llama.DefaultOptions.Tokens),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func (h *llamaHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
