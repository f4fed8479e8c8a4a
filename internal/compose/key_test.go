package compose

import (
	"testing"

	"adapterd/pkg/types"
)

func TestKeyCanonicalization(t *testing.T) {
	seq := NewKey([]string{"b", "a"}, types.StrategySequential)
	if seq.String() != "sequential|b,a" {
		t.Fatalf("sequential order not preserved: %s", seq.String())
	}
	add1 := NewKey([]string{"b", "a"}, types.StrategyAdditive)
	add2 := NewKey([]string{"a", "b"}, types.StrategyAdditive)
	if add1.String() != add2.String() {
		t.Fatalf("additive keys differ: %s vs %s", add1.String(), add2.String())
	}
	gated := NewKey([]string{"z", "m", "a"}, types.StrategyGated)
	if gated.String() != "gated|a,m,z" {
		t.Fatalf("gated key not sorted: %s", gated.String())
	}
	// Same ids, different strategy: distinct slots.
	if seq.String() == NewKey([]string{"b", "a"}, types.StrategyAdditive).String() {
		t.Fatal("strategies share a cache slot")
	}
}

func TestKeyDoesNotAliasInput(t *testing.T) {
	ids := []string{"b", "a"}
	k := NewKey(ids, types.StrategyAdditive)
	ids[0] = "mutated"
	if k.IDs[0] != "a" || k.IDs[1] != "b" {
		t.Fatalf("key aliased caller slice: %v", k.IDs)
	}
}

func TestKeySubstitute(t *testing.T) {
	k := NewKey([]string{"old", "mid", "old"}, types.StrategySequential)
	nk := k.Substitute("old", "new")
	if nk.String() != "sequential|new,mid,new" {
		t.Fatalf("substitute: %s", nk.String())
	}
	if !k.References("old") || nk.References("old") {
		t.Fatal("references wrong after substitute")
	}
	// Additive substitution re-sorts.
	ak := NewKey([]string{"a", "z"}, types.StrategyAdditive).Substitute("z", "b")
	if ak.String() != "additive|a,b" {
		t.Fatalf("additive substitute not canonical: %s", ak.String())
	}
}
