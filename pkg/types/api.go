package types

// InferRequest is the inference entry point payload.
type InferRequest struct {
	// Tenant issuing the request.
	// example: acme-foods
	TenantID string `json:"tenant_id"`
	// Task to perform (matched against adapter task tags).
	// example: copy_generation
	Task string `json:"task"`
	// Optional retailer scope.
	// example: walmart
	RetailerID string `json:"retailer_id,omitempty"`
	// Optional brand scope.
	// example: acme
	BrandID string `json:"brand_id,omitempty"`
	// Stable subject id used for deterministic experiment assignment.
	// example: user-8842
	SubjectID string `json:"subject_id"`
	// Prompt text.
	// example: Write a product description for organic oat milk.
	Prompt string `json:"prompt"`
	// Bypass registry resolution and compose exactly these adapters.
	ForceAdapterIDs []string `json:"force_adapter_ids,omitempty"`
	// Composition strategy; defaults to sequential.
	// example: sequential
	Strategy Strategy `json:"strategy,omitempty"`
}

// InferResponse is returned by POST /infer.
type InferResponse struct {
	Output string `json:"output"`
	// Adapter ids that backed the composition, in composition order.
	AdaptersUsed []string `json:"adapters_used"`
	// Variant the subject was assigned to, when an experiment applied.
	VariantID string `json:"variant_id,omitempty"`
	// End-to-end request latency in milliseconds.
	LatencyMS float64 `json:"latency_ms"`
}

// AdaptersResponse wraps the adapter list returned by GET /adapters.
type AdaptersResponse struct {
	Adapters []AdapterDescriptor `json:"adapters"`
}

// SwapRequest replaces old_id with new_id in cached compositions.
type SwapRequest struct {
	OldID string `json:"old_id"`
	NewID string `json:"new_id"`
	// Warm pre-builds replacements before redirecting; cold just invalidates.
	Warm bool `json:"warm"`
}

// PrefetchRequest warms the cache for one composition.
type PrefetchRequest struct {
	AdapterIDs []string `json:"adapter_ids"`
	Strategy   Strategy `json:"strategy,omitempty"`
}

// CompareRequest selects adapters for a side-by-side metric snapshot.
type CompareRequest struct {
	AdapterIDs []string `json:"adapter_ids"`
}

// CacheStats is returned by GET /cache/stats.
type CacheStats struct {
	// Live entries in the cache.
	Size int `json:"size"`
	// Configured capacity.
	Capacity int `json:"capacity"`
	// Hit rate over the sliding window, in [0,1].
	HitRate float64 `json:"hit_rate"`
	// Cumulative hit/miss/eviction counters.
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	// Average build latency in milliseconds over the sliding window.
	AvgBuildLatencyMS float64 `json:"avg_build_latency_ms"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: adapter not found: grocery-v1
	Error string `json:"error" example:"adapter not found: grocery-v1"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Registered (non-retired) adapters.
	// example: 12
	Adapters int `json:"adapters"`
	// Cache counters at snapshot time.
	Cache CacheStats `json:"cache"`
	// Queued async composition requests.
	// example: 3
	QueueLen int `json:"queue_len"`
	// Async queue capacity.
	// example: 64
	QueueDepth int `json:"queue_depth"`
	// Composition worker count.
	// example: 4
	Workers int `json:"workers"`
	// Engine backing compositions (memory or llama).
	// example: llama
	Engine string `json:"engine"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}
