package compose

import (
	"context"
	"sync"
)

// redirectTable rewrites adapter ids at compose time after a swap. Chains
// (a→b, then b→c) are followed to the final id.
type redirectTable struct {
	mu sync.RWMutex
	m  map[string]string
}

func newRedirectTable() *redirectTable {
	return &redirectTable{m: make(map[string]string)}
}

func (t *redirectTable) apply(ids []string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.m) == 0 {
		return ids
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		cur := id
		for hops := 0; hops <= len(t.m); hops++ {
			next, ok := t.m[cur]
			if !ok {
				break
			}
			cur = next
		}
		out[i] = cur
	}
	return out
}

func (t *redirectTable) set(oldID, newID string) {
	t.mu.Lock()
	t.m[oldID] = newID
	t.mu.Unlock()
}

// SwapAdapter replaces oldID with newID in all compositions.
//
// Warm: pre-builds a replacement for every cached key referencing oldID,
// holding a reference on each so the replacements cannot be evicted while
// the swap is in progress. Only after every warm build succeeds does the
// swap redirect future lookups and invalidate the old entries. In-flight
// requests on old handles complete normally; new requests resolve newID.
//
// Cold: redirects immediately and invalidates every entry referencing
// oldID; the next request triggers a fresh build.
func (c *Compositor) SwapAdapter(ctx context.Context, oldID, newID string, warm bool) error {
	if _, err := c.reg.Resolve(newID); err != nil {
		return err
	}
	c.pub.Publish(Event{Name: "swap_start", Key: oldID + "->" + newID, Fields: map[string]any{"warm": warm}})

	if !warm {
		c.redirects.set(oldID, newID)
		n := c.cache.InvalidateAdapter(oldID)
		c.log.Info().Str("old", oldID).Str("new", newID).Int("invalidated", n).Msg("cold swap")
		c.pub.Publish(Event{Name: "swap_ready", Key: oldID + "->" + newID, Fields: map[string]any{"invalidated": n}})
		return nil
	}

	oldKeys := c.cache.KeysReferencing(oldID)
	pinned := make([]*Ref, 0, len(oldKeys))
	release := func() {
		for _, r := range pinned {
			r.Release()
		}
	}
	for _, k := range oldKeys {
		nk := k.Substitute(oldID, newID)
		ref, err := c.ComposeSync(ctx, nk.IDs, nk.Strategy)
		if err != nil {
			release()
			c.pub.Publish(Event{Name: "swap_fail", Key: oldID + "->" + newID, Fields: map[string]any{"error": err.Error()}})
			return err
		}
		pinned = append(pinned, ref)
	}

	// All replacements built: redirect, then drop the old entries. The
	// pins come off last so the new entries stay resident throughout.
	c.redirects.set(oldID, newID)
	for _, k := range oldKeys {
		c.cache.Invalidate(k)
	}
	release()
	c.log.Info().Str("old", oldID).Str("new", newID).Int("rebuilt", len(oldKeys)).Msg("warm swap")
	c.pub.Publish(Event{Name: "swap_ready", Key: oldID + "->" + newID, Fields: map[string]any{"rebuilt": len(oldKeys)}})
	return nil
}
