package experiment

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"adapterd/pkg/types"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiments.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cfg := twoArm("exp")
	if err := s.SaveExperiment(cfg, types.ExperimentRunning); err != nil {
		t.Fatalf("save experiment: %v", err)
	}
	snap := CounterSnapshot{Impressions: 12, Successes: 9, LatencySum: 840, FeedbackSum: 4.2, FeedbackCount: 5}
	if err := s.SaveCounters("exp", "control", snap); err != nil {
		t.Fatalf("save counters: %v", err)
	}
	// Upserts overwrite, not append.
	snap.Impressions = 13
	if err := s.SaveCounters("exp", "control", snap); err != nil {
		t.Fatalf("update counters: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	loaded, err := s2.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d experiments, want 1", len(loaded))
	}
	got := loaded[0]
	if got.Config.ID != "exp" || got.Status != types.ExperimentRunning {
		t.Fatalf("unexpected experiment: %+v", got)
	}
	if len(got.Config.Variants) != 2 {
		t.Fatalf("variants lost: %+v", got.Config)
	}
	c := got.Counters["control"]
	if c.Impressions != 13 || c.Successes != 9 || c.LatencySum != 840 || c.FeedbackCount != 5 {
		t.Fatalf("unexpected counters: %+v", c)
	}
}

func TestAssignorOnSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiments.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	a, err := New(s, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Create(twoArm("exp")); err != nil {
		t.Fatalf("create: %v", err)
	}
	a.Start("exp")
	feedImpressions(t, a, "exp", "treatment", 5, 4)
	s.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	b, err := New(s2, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	res, err := b.Results("exp")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	for _, v := range res.Variants {
		if v.VariantID == "treatment" && (v.Impressions != 5 || v.Successes != 4) {
			t.Fatalf("counters lost across process restart: %+v", v)
		}
	}
}
