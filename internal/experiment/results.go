package experiment

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"adapterd/pkg/types"
)

// VariantResult is one variant's aggregate in a results report.
type VariantResult struct {
	VariantID    string  `json:"variant_id"`
	Impressions  uint64  `json:"impressions"`
	Successes    uint64  `json:"successes"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	AvgFeedback  float64 `json:"avg_feedback,omitempty"`
	// PValue of the two-proportion test against the leading variant.
	// 1 for the leader itself.
	PValue float64 `json:"p_value"`
}

// Results is the evaluation of an experiment at a point in time.
type Results struct {
	ExperimentID string                 `json:"experiment_id"`
	Status       types.ExperimentStatus `json:"status"`
	Variants     []VariantResult        `json:"variants"`
	// Winner is set only when the result is conclusive.
	Winner     string `json:"winner,omitempty"`
	Conclusive bool   `json:"conclusive"`
	// Reason explains an inconclusive result.
	Reason string `json:"reason,omitempty"`
}

// Results evaluates per-variant aggregates and runs a pairwise
// two-proportion z-test between the leading variant and each other. A
// winner is declared only when every variant reached min_sample_size and
// every pairwise p-value clears 1 - confidence_level.
func (a *Assignor) Results(experimentID string) (Results, error) {
	a.mu.RLock()
	e, ok := a.exps[experimentID]
	a.mu.RUnlock()
	if !ok {
		return Results{}, experimentNotFoundError{id: experimentID}
	}

	res := Results{ExperimentID: experimentID, Status: e.status}
	snaps := make(map[string]CounterSnapshot, len(e.cfg.Variants))
	for _, v := range e.cfg.Variants {
		snaps[v.ID] = e.counters[v.ID].snapshot()
	}

	leader := ""
	leaderRate := -1.0
	for _, v := range e.cfg.Variants {
		s := snaps[v.ID]
		rate := 0.0
		if s.Impressions > 0 {
			rate = float64(s.Successes) / float64(s.Impressions)
		}
		if rate > leaderRate || (rate == leaderRate && (leader == "" || v.ID < leader)) {
			leader = v.ID
			leaderRate = rate
		}
	}

	allSampled := true
	significant := true
	ls := snaps[leader]
	for _, v := range e.cfg.Variants {
		s := snaps[v.ID]
		vr := VariantResult{
			VariantID:   v.ID,
			Impressions: s.Impressions,
			Successes:   s.Successes,
			PValue:      1,
		}
		if s.Impressions > 0 {
			vr.SuccessRate = float64(s.Successes) / float64(s.Impressions)
			vr.AvgLatencyMS = s.LatencySum / float64(s.Impressions)
		}
		if s.FeedbackCount > 0 {
			vr.AvgFeedback = s.FeedbackSum / float64(s.FeedbackCount)
		}
		if v.ID != leader {
			vr.PValue = twoProportionP(ls.Successes, ls.Impressions, s.Successes, s.Impressions)
		}
		if s.Impressions < uint64(e.cfg.MinSampleSize) {
			allSampled = false
		}
		if v.ID != leader && vr.PValue >= 1-e.cfg.ConfidenceLevel {
			significant = false
		}
		res.Variants = append(res.Variants, vr)
	}
	sort.Slice(res.Variants, func(i, j int) bool {
		return res.Variants[i].VariantID < res.Variants[j].VariantID
	})

	switch {
	case !allSampled:
		res.Reason = "inconclusive: not all variants reached min_sample_size"
	case !significant:
		res.Reason = "inconclusive: difference not significant at configured confidence"
	default:
		res.Winner = leader
		res.Conclusive = true
	}
	return res, nil
}

// twoProportionP is the two-sided p-value of a pooled two-proportion z-test
// on success rates.
func twoProportionP(s1, n1, s2, n2 uint64) float64 {
	if n1 == 0 || n2 == 0 {
		return 1
	}
	p1 := float64(s1) / float64(n1)
	p2 := float64(s2) / float64(n2)
	pooled := float64(s1+s2) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 1
	}
	z := math.Abs(p1-p2) / se
	return 2 * (1 - distuv.UnitNormal.CDF(z))
}
