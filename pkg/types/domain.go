package types

import "time"

// AdapterType classifies what slice of traffic an adapter specializes for.
type AdapterType string

const (
	AdapterIndustry AdapterType = "industry"
	AdapterRetailer AdapterType = "retailer"
	AdapterBrand    AdapterType = "brand"
	AdapterTask     AdapterType = "task"
)

// ValidAdapterType reports whether t is one of the known adapter types.
func ValidAdapterType(t AdapterType) bool {
	switch t {
	case AdapterIndustry, AdapterRetailer, AdapterBrand, AdapterTask:
		return true
	}
	return false
}

// Strategy selects how a stack of adapters is merged into one composition.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyAdditive   Strategy = "additive"
	StrategyGated      Strategy = "gated"
)

// ValidStrategy reports whether s is a known composition strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategySequential, StrategyAdditive, StrategyGated:
		return true
	}
	return false
}

// AdapterDescriptor describes a registered parameter-efficient adapter.
// Descriptors are immutable once registered; deregistration retires them
// rather than deleting.
type AdapterDescriptor struct {
	// Stable identifier for the adapter.
	// example: grocery-walmart-v2
	ID string `json:"id" yaml:"id" example:"grocery-walmart-v2"`
	// Specialization type: industry, retailer, brand or task.
	// example: retailer
	Type AdapterType `json:"type" yaml:"type" example:"retailer"`
	// Capability tags used by registry search (task names, retailer ids...).
	// example: ["walmart","copy_generation"]
	Tags []string `json:"tags,omitempty" yaml:"tags" example:"walmart,copy_generation"`
	// Adapter version string.
	// example: 2.1.0
	Version string `json:"version" yaml:"version" example:"2.1.0"`
	// Path to the weight artifact on disk.
	// example: /var/lib/adapterd/adapters/grocery-walmart-v2.bin
	ArtifactPath string `json:"artifact_path,omitempty" yaml:"artifact_path"`
	// Estimated artifact size in MB.
	// example: 64
	SizeMB int `json:"size_mb,omitempty" yaml:"size_mb" example:"64"`
	// Registration time.
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
	// True once the adapter has been deregistered.
	Retired bool `json:"retired,omitempty" yaml:"-"`
}

// HasTag reports whether the descriptor carries the given capability tag.
func (d AdapterDescriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
