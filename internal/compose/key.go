package compose

import (
	"sort"
	"strings"

	"adapterd/pkg/types"
)

// Key identifies one cached composition: the canonical adapter-id sequence
// plus the merge strategy. Order is preserved for sequential merges; additive
// and gated merges are order-independent, so their ids are sorted to make
// identical sets collide on one cache slot.
type Key struct {
	IDs      []string
	Strategy types.Strategy
}

// NewKey canonicalizes the id sequence for the strategy.
func NewKey(ids []string, strategy types.Strategy) Key {
	cp := make([]string, len(ids))
	copy(cp, ids)
	if strategy != types.StrategySequential {
		sort.Strings(cp)
	}
	return Key{IDs: cp, Strategy: strategy}
}

// String returns the canonical cache key.
func (k Key) String() string {
	return string(k.Strategy) + "|" + strings.Join(k.IDs, ",")
}

// References reports whether the key's sequence contains the adapter id.
func (k Key) References(id string) bool {
	for _, v := range k.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// Substitute returns a new key with every occurrence of oldID replaced by
// newID, re-canonicalized.
func (k Key) Substitute(oldID, newID string) Key {
	ids := make([]string, len(k.IDs))
	for i, v := range k.IDs {
		if v == oldID {
			ids[i] = newID
		} else {
			ids[i] = v
		}
	}
	return NewKey(ids, k.Strategy)
}
