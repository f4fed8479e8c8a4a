package experiment

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"adapterd/pkg/types"
)

func feedImpressions(t *testing.T, a *Assignor, expID, variantID string, n, successes int) {
	t.Helper()
	for i := 0; i < n; i++ {
		imp := types.ImpressionRequest{VariantID: variantID, Success: i < successes, LatencyMS: 50}
		if err := a.RecordImpression(expID, imp); err != nil {
			t.Fatalf("record %s: %v", variantID, err)
		}
	}
}

func TestResultsDeclaresClearWinner(t *testing.T) {
	a := newAssignor(t)
	cfg := twoArm("exp")
	cfg.MinSampleSize = 100
	if err := a.Create(cfg); err != nil {
		t.Fatalf("create: %v", err)
	}
	a.Start("exp")
	// 80% vs 50% over 500 impressions each is decisive at 95% confidence.
	feedImpressions(t, a, "exp", "control", 500, 250)
	feedImpressions(t, a, "exp", "treatment", 500, 400)

	res, err := a.Results("exp")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if !res.Conclusive || res.Winner != "treatment" {
		t.Fatalf("expected treatment to win, got %+v", res)
	}
	for _, v := range res.Variants {
		if v.VariantID == "treatment" {
			continue
		}
		if v.PValue >= 0.05 {
			t.Fatalf("losing variant p-value = %v, want < 0.05", v.PValue)
		}
	}
}

func TestResultsInconclusiveUnderMinSample(t *testing.T) {
	a := newAssignor(t)
	cfg := twoArm("exp")
	cfg.MinSampleSize = 100
	if err := a.Create(cfg); err != nil {
		t.Fatalf("create: %v", err)
	}
	a.Start("exp")
	feedImpressions(t, a, "exp", "control", 500, 250)
	feedImpressions(t, a, "exp", "treatment", 50, 45) // decisive rate, tiny sample

	res, err := a.Results("exp")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if res.Conclusive || res.Winner != "" {
		t.Fatalf("under-sampled experiment declared a winner: %+v", res)
	}
	if res.Reason == "" {
		t.Fatal("inconclusive result carries no reason")
	}
}

func TestResultsInconclusiveWhenNotSignificant(t *testing.T) {
	a := newAssignor(t)
	cfg := twoArm("exp")
	cfg.MinSampleSize = 100
	if err := a.Create(cfg); err != nil {
		t.Fatalf("create: %v", err)
	}
	a.Start("exp")
	// 51% vs 50% over 500 impressions is noise.
	feedImpressions(t, a, "exp", "control", 500, 250)
	feedImpressions(t, a, "exp", "treatment", 500, 255)

	res, err := a.Results("exp")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if res.Conclusive {
		t.Fatalf("noise declared conclusive: %+v", res)
	}
}

func TestTwoProportionPValue(t *testing.T) {
	// Identical proportions: p-value 1.
	if p := twoProportionP(50, 100, 50, 100); p < 0.999 {
		t.Fatalf("identical proportions p = %v, want ~1", p)
	}
	// Extreme difference: p-value ~0.
	if p := twoProportionP(95, 100, 5, 100); p > 1e-6 {
		t.Fatalf("extreme difference p = %v, want ~0", p)
	}
	// Empty samples are never significant.
	if p := twoProportionP(0, 0, 5, 10); p != 1 {
		t.Fatalf("empty sample p = %v, want 1", p)
	}
	// Symmetry.
	if p1, p2 := twoProportionP(60, 100, 40, 100), twoProportionP(40, 100, 60, 100); p1 != p2 {
		t.Fatalf("asymmetric p-values: %v vs %v", p1, p2)
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	store := NewMemoryStore()
	a, err := New(store, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Create(twoArm("exp")); err != nil {
		t.Fatalf("create: %v", err)
	}
	a.Start("exp")
	feedImpressions(t, a, "exp", "control", 10, 7)

	// Simulated restart against the same store.
	b, err := New(store, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if st, _ := b.Status("exp"); st != types.ExperimentRunning {
		t.Fatalf("status after reload = %s, want running", st)
	}
	res, err := b.Results("exp")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	for _, v := range res.Variants {
		if v.VariantID == "control" && (v.Impressions != 10 || v.Successes != 7) {
			t.Fatalf("counters lost on reload: %+v", v)
		}
	}
	// Assignments stay stable across restart.
	got1, _ := a.Assign("exp", "subject-7", "", "")
	got2, _ := b.Assign("exp", "subject-7", "", "")
	if got1.VariantID != got2.VariantID {
		t.Fatalf("assignment changed across restart: %s vs %s", got1.VariantID, got2.VariantID)
	}
}

func TestConcurrentImpressionsPersistFully(t *testing.T) {
	store := NewMemoryStore()
	a, err := New(store, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Create(twoArm("exp")); err != nil {
		t.Fatalf("create: %v", err)
	}
	a.Start("exp")

	const workers = 8
	const perWorker = 250
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				imp := types.ImpressionRequest{
					VariantID: "treatment",
					Success:   i%2 == 0,
					LatencyMS: 100,
				}
				if err := a.RecordImpression("exp", imp); err != nil {
					t.Errorf("impression: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// The durable row must hold the final snapshot, not an older one that
	// raced past a newer write.
	b, err := New(store, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	res, err := b.Results("exp")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	for _, v := range res.Variants {
		if v.VariantID != "treatment" {
			continue
		}
		if v.Impressions != workers*perWorker {
			t.Fatalf("persisted impressions = %d, want %d", v.Impressions, workers*perWorker)
		}
		if v.Successes != workers*perWorker/2 {
			t.Fatalf("persisted successes = %d, want %d", v.Successes, workers*perWorker/2)
		}
	}
}
