package registry

import (
	"testing"

	"adapterd/pkg/types"
)

func desc(id string, typ types.AdapterType, version string, tags ...string) types.AdapterDescriptor {
	return types.AdapterDescriptor{ID: id, Type: typ, Version: version, Tags: tags}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New(nil)
	if err := r.Register(desc("a", types.AdapterTask, "1.0.0", "copy_generation"), false); err != nil {
		t.Fatalf("register: %v", err)
	}
	d, err := r.Lookup("a")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if d.ID != "a" || d.CreatedAt.IsZero() {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
	if _, err := r.Lookup("missing"); !IsAdapterNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := New(nil)
	cases := []types.AdapterDescriptor{
		{ID: "", Type: types.AdapterTask, Version: "1"},
		{ID: "a", Type: "bogus", Version: "1"},
		{ID: "a", Type: types.AdapterTask, Version: ""},
	}
	for i, d := range cases {
		if err := r.Register(d, false); !IsInvalidDescriptor(err) {
			t.Fatalf("case %d: expected invalid descriptor, got %v", i, err)
		}
	}
}

func TestRegisterDuplicateVersion(t *testing.T) {
	r := New(nil)
	if err := r.Register(desc("a", types.AdapterTask, "1.0.0"), false); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Same id+version is a no-op.
	if err := r.Register(desc("a", types.AdapterTask, "1.0.0"), false); err != nil {
		t.Fatalf("idempotent register: %v", err)
	}
	// Different version requires force.
	if err := r.Register(desc("a", types.AdapterTask, "2.0.0"), false); !IsDuplicateAdapter(err) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if err := r.Register(desc("a", types.AdapterTask, "2.0.0"), true); err != nil {
		t.Fatalf("forced register: %v", err)
	}
	d, _ := r.Lookup("a")
	if d.Version != "2.0.0" {
		t.Fatalf("expected forced version, got %s", d.Version)
	}
}

func TestFindFiltersByTagAndType(t *testing.T) {
	r := New(nil)
	r.Register(desc("walmart-v1", types.AdapterRetailer, "1", "walmart"), false)
	r.Register(desc("target-v1", types.AdapterRetailer, "1", "target"), false)
	r.Register(desc("copy-v1", types.AdapterTask, "1", "copy_generation"), false)
	r.Register(desc("copy-v2", types.AdapterTask, "1", "copy_generation", "seo"), false)

	got := r.Find([]string{"copy_generation"}, types.AdapterTask)
	if len(got) != 2 || got[0].ID != "copy-v1" || got[1].ID != "copy-v2" {
		t.Fatalf("unexpected find result: %+v", got)
	}
	got = r.Find([]string{"copy_generation", "seo"}, types.AdapterTask)
	if len(got) != 1 || got[0].ID != "copy-v2" {
		t.Fatalf("multi-tag find: %+v", got)
	}
	if got := r.Find([]string{"walmart"}, types.AdapterTask); len(got) != 0 {
		t.Fatalf("type filter leaked: %+v", got)
	}
}

type stubUsage struct{ inUse map[string]bool }

func (s stubUsage) AdapterInUse(id string) bool { return s.inUse[id] }

func TestDeregisterRetiresAndBlocksWhileInUse(t *testing.T) {
	r := New(nil)
	r.Register(desc("a", types.AdapterTask, "1", "copy"), false)
	r.SetUsageChecker(stubUsage{inUse: map[string]bool{"a": true}})

	if err := r.Deregister("a"); !IsAdapterInUse(err) {
		t.Fatalf("expected in-use, got %v", err)
	}
	r.SetUsageChecker(stubUsage{})
	if err := r.Deregister("a"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	// Retired adapters stay visible to Lookup but not Resolve or Find.
	if _, err := r.Lookup("a"); err != nil {
		t.Fatalf("lookup retired: %v", err)
	}
	if _, err := r.Resolve("a"); !IsAdapterNotFound(err) {
		t.Fatalf("resolve retired: %v", err)
	}
	if got := r.Find([]string{"copy"}, ""); len(got) != 0 {
		t.Fatalf("find returned retired: %+v", got)
	}
	if r.Count() != 0 {
		t.Fatalf("count = %d, want 0", r.Count())
	}
	// A retired id can be re-registered without force.
	if err := r.Register(desc("a", types.AdapterTask, "3", "copy"), false); err != nil {
		t.Fatalf("re-register retired: %v", err)
	}
	if _, err := r.Resolve("a"); err != nil {
		t.Fatalf("resolve after re-register: %v", err)
	}
}

func TestDeregisterUnknown(t *testing.T) {
	r := New(nil)
	if err := r.Deregister("nope"); !IsAdapterNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
