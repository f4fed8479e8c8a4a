// Package registry tracks adapter descriptors: registration, lookup,
// tag/type search and retirement. Descriptors are immutable once stored;
// deregistration marks them retired instead of deleting so historical
// metrics keep resolving ids.
package registry

import (
	"sort"
	"strings"
	"sync"

	"adapterd/internal/clock"
	"adapterd/pkg/types"
)

// UsageChecker reports whether any live cache entry still references an
// adapter. Wired after construction because the compositor is built on top
// of the registry.
type UsageChecker interface {
	AdapterInUse(id string) bool
}

type Registry struct {
	mu       sync.RWMutex
	adapters map[string]types.AdapterDescriptor
	clk      clock.Clock
	usage    UsageChecker
}

// New constructs an empty Registry. clk may be nil, defaulting to real time.
func New(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry{
		adapters: make(map[string]types.AdapterDescriptor),
		clk:      clk,
	}
}

// SetUsageChecker installs the live-reference check used by Deregister.
func (r *Registry) SetUsageChecker(u UsageChecker) {
	r.mu.Lock()
	r.usage = u
	r.mu.Unlock()
}

// Register stores a descriptor. Re-registering the same id+version is a
// no-op; a differing version fails unless force is set. A retired id may be
// re-registered freely.
func (r *Registry) Register(d types.AdapterDescriptor, force bool) error {
	if strings.TrimSpace(d.ID) == "" {
		return invalidDescriptorError{reason: "empty id"}
	}
	if !types.ValidAdapterType(d.Type) {
		return invalidDescriptorError{reason: "unknown type: " + string(d.Type)}
	}
	if strings.TrimSpace(d.Version) == "" {
		return invalidDescriptorError{reason: "empty version"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.adapters[d.ID]; ok && !cur.Retired {
		if cur.Version == d.Version {
			return nil
		}
		if !force {
			return duplicateAdapterError{id: d.ID, have: cur.Version, want: d.Version}
		}
	}
	d.CreatedAt = r.clk.Now()
	d.Retired = false
	r.adapters[d.ID] = d
	return nil
}

// Lookup returns the descriptor for id, retired or not.
func (r *Registry) Lookup(id string) (types.AdapterDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.adapters[id]
	if !ok {
		return types.AdapterDescriptor{}, adapterNotFoundError{id: id}
	}
	return d, nil
}

// Resolve returns the descriptor for id, failing for retired adapters.
// Composition paths use Resolve so retired adapters stop serving.
func (r *Registry) Resolve(id string) (types.AdapterDescriptor, error) {
	d, err := r.Lookup(id)
	if err != nil {
		return types.AdapterDescriptor{}, err
	}
	if d.Retired {
		return types.AdapterDescriptor{}, adapterNotFoundError{id: id}
	}
	return d, nil
}

// Find returns non-retired adapters matching every given tag and, when typ
// is non-empty, the given type. The result is a snapshot at call time,
// sorted by id.
func (r *Registry) Find(tags []string, typ types.AdapterType) []types.AdapterDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.AdapterDescriptor
	for _, d := range r.adapters {
		if d.Retired {
			continue
		}
		if typ != "" && d.Type != typ {
			continue
		}
		ok := true
		for _, t := range tags {
			if !d.HasTag(t) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Deregister retires an adapter. It fails while any live cache entry still
// references the id.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.adapters[id]
	if !ok {
		return adapterNotFoundError{id: id}
	}
	if r.usage != nil && r.usage.AdapterInUse(id) {
		return adapterInUseError{id: id}
	}
	d.Retired = true
	r.adapters[id] = d
	return nil
}

// All returns a snapshot of every descriptor, sorted by id.
func (r *Registry) All() []types.AdapterDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.AdapterDescriptor, 0, len(r.adapters))
	for _, d := range r.adapters {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of non-retired adapters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, d := range r.adapters {
		if !d.Retired {
			n++
		}
	}
	return n
}
