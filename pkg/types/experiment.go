package types

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

const (
	ExperimentDraft   ExperimentStatus = "draft"
	ExperimentRunning ExperimentStatus = "running"
	ExperimentStopped ExperimentStatus = "stopped"
)

// Variant is one arm of an experiment: its adapter stack and traffic share.
type Variant struct {
	// example: control
	ID string `json:"id"`
	// Adapter ids composed for subjects in this variant.
	AdapterIDs []string `json:"adapter_ids"`
	// Share of eligible traffic in [0,1]; shares across variants sum to 1.
	// example: 0.5
	TrafficPct float64 `json:"traffic_pct"`
}

// TargetingFilter restricts which subjects an experiment applies to.
// Empty slices match everything.
type TargetingFilter struct {
	Tasks     []string `json:"tasks,omitempty"`
	Retailers []string `json:"retailers,omitempty"`
}

// Matches reports whether the filter admits the given task/retailer pair.
func (f TargetingFilter) Matches(task, retailer string) bool {
	if len(f.Tasks) > 0 && !contains(f.Tasks, task) {
		return false
	}
	if len(f.Retailers) > 0 && !contains(f.Retailers, retailer) {
		return false
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// ExperimentConfig is the validated definition of an A/B experiment.
type ExperimentConfig struct {
	// example: copy-gen-v2-rollout
	ID       string    `json:"id"`
	Variants []Variant `json:"variants"`
	// Subjects outside the filter get the control sentinel, not a variant.
	Targeting TargetingFilter `json:"targeting,omitempty"`
	// Impressions each variant must reach before a winner may be declared.
	// example: 1000
	MinSampleSize int `json:"min_sample_size"`
	// Confidence level for the significance test, e.g. 0.95.
	// example: 0.95
	ConfidenceLevel float64 `json:"confidence_level"`
}

// AssignRequest is the body of POST /experiments/{id}/assign.
type AssignRequest struct {
	SubjectID string `json:"subject_id"`
	Task      string `json:"task,omitempty"`
	Retailer  string `json:"retailer,omitempty"`
}

// AssignResponse reports the variant a subject maps to.
type AssignResponse struct {
	VariantID string `json:"variant_id,omitempty"`
	// True when targeting excluded the subject; no impression is recorded.
	Control bool `json:"control"`
}

// ImpressionRequest is the body of POST /experiments/{id}/impressions.
type ImpressionRequest struct {
	VariantID     string   `json:"variant_id"`
	Success       bool     `json:"success"`
	LatencyMS     float64  `json:"latency_ms"`
	FeedbackScore *float64 `json:"feedback_score,omitempty"`
}
