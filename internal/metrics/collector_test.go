package metrics

import (
	"testing"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector(nil)
	if _, ok := c.Snapshot("ghost"); ok {
		t.Fatal("snapshot for untracked adapter reported ok")
	}
	c.RecordRequest("a", 100, true, "copy_generation")
	c.RecordRequest("a", 300, false, "copy_generation")
	c.RecordRequest("a", 200, true, "seo")
	c.RecordFeedback("a", 4, "copy_generation")
	c.RecordFeedback("a", 5, "seo")

	snap, ok := c.Snapshot("a")
	if !ok {
		t.Fatal("snapshot missing")
	}
	if snap.Requests != 3 || snap.Successes != 2 {
		t.Fatalf("counters: %+v", snap)
	}
	if snap.SuccessRate < 0.66 || snap.SuccessRate > 0.67 {
		t.Fatalf("success rate = %v", snap.SuccessRate)
	}
	if snap.AvgLatencyMS != 200 {
		t.Fatalf("avg latency = %v, want 200", snap.AvgLatencyMS)
	}
	if snap.RatingCount != 2 || snap.AvgRating != 4.5 {
		t.Fatalf("ratings: %+v", snap)
	}
	if snap.Tasks["copy_generation"] != 2 || snap.Tasks["seo"] != 1 {
		t.Fatalf("task counts: %v", snap.Tasks)
	}
	if snap.WindowStartUnix == 0 {
		t.Fatal("window start not set")
	}
}

func TestTopAdaptersRanking(t *testing.T) {
	c := NewCollector(nil)
	// b: 3 requests, a: 2, z: 1.
	for i := 0; i < 3; i++ {
		c.RecordRequest("b", 100, true, "")
	}
	for i := 0; i < 2; i++ {
		c.RecordRequest("a", 50, true, "")
	}
	c.RecordRequest("z", 10, false, "")

	top, err := c.TopAdapters(MetricRequests, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].AdapterID != "b" || top[1].AdapterID != "a" {
		t.Fatalf("requests ranking: %+v", top)
	}

	// Latency ranks ascending: lower is better.
	top, err = c.TopAdapters(MetricAvgLatency, 0)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if top[0].AdapterID != "z" || top[2].AdapterID != "b" {
		t.Fatalf("latency ranking: %+v", top)
	}

	if _, err := c.TopAdapters("bogus", 5); !IsInvalidMetric(err) {
		t.Fatalf("expected invalid metric, got %v", err)
	}
}

func TestTopAdaptersTieBreaksByID(t *testing.T) {
	c := NewCollector(nil)
	for _, id := range []string{"zeta", "alpha", "mid"} {
		c.RecordRequest(id, 100, true, "")
	}
	top, err := c.TopAdapters(MetricRequests, 0)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, w := range want {
		if top[i].AdapterID != w {
			t.Fatalf("tie order: got %+v, want %v", top, want)
		}
	}
}

func TestComparePreservesRequestOrder(t *testing.T) {
	c := NewCollector(nil)
	c.RecordRequest("a", 100, true, "")
	got := c.Compare([]string{"z", "a"})
	if len(got) != 2 || got[0].AdapterID != "z" || got[1].AdapterID != "a" {
		t.Fatalf("compare order: %+v", got)
	}
	if got[0].Requests != 0 {
		t.Fatalf("untracked adapter should be zero-valued: %+v", got[0])
	}
	if got[1].Requests != 1 {
		t.Fatalf("tracked adapter lost data: %+v", got[1])
	}
}

func TestCollectorConcurrentUpdates(t *testing.T) {
	c := NewCollector(nil)
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 500; i++ {
				c.RecordRequest("hot", float64(i%100), i%2 == 0, "copy")
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
	snap, _ := c.Snapshot("hot")
	if snap.Requests != 4000 {
		t.Fatalf("requests = %d, want 4000", snap.Requests)
	}
	if snap.Successes != 2000 {
		t.Fatalf("successes = %d, want 2000", snap.Successes)
	}
}
